package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"
)

// ErrRemoteUnavailable indicates durable storage has no endpoint configured.
var ErrRemoteUnavailable = errors.New("remote storage not configured")

type RemoteClientConfig struct {
	BaseURL    string
	APIKey     string
	Bucket     string
	CDNBaseURL string
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
}

// RemoteClient uploads artifacts to an S3-compatible object storage HTTP
// API and returns the public URL they are served from.
type RemoteClient struct {
	baseURL    string
	apiKey     string
	bucket     string
	cdnBaseURL string
	timeout    time.Duration
	maxRetries int
	httpClient *http.Client
}

func NewRemoteClient(config RemoteClientConfig) *RemoteClient {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 2
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	if strings.TrimSpace(config.Bucket) == "" {
		config.Bucket = "voxdoc-artifacts"
	}
	return &RemoteClient{
		baseURL:    strings.TrimSuffix(strings.TrimSpace(config.BaseURL), "/"),
		apiKey:     strings.TrimSpace(config.APIKey),
		bucket:     config.Bucket,
		cdnBaseURL: strings.TrimSuffix(strings.TrimSpace(config.CDNBaseURL), "/"),
		timeout:    config.Timeout,
		maxRetries: config.MaxRetries,
		httpClient: config.HTTPClient,
	}
}

func (c *RemoteClient) Available() bool {
	return c.baseURL != ""
}

// Upload stores the local file under objectPath and returns its public URL.
func (c *RemoteClient) Upload(ctx context.Context, localPath, objectPath, contentType string) (string, error) {
	if !c.Available() {
		return "", ErrRemoteUnavailable
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("read artifact: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, url.PathEscape(c.bucket), objectPath)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		lastErr = c.put(ctx, endpoint, data, contentType)
		if lastErr == nil {
			return c.publicURL(objectPath), nil
		}
		if attempt == c.maxRetries {
			break
		}
		backoff := time.Duration(500*(attempt+1)) * time.Millisecond
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}
	return "", lastErr
}

func (c *RemoteClient) put(ctx context.Context, endpoint string, data []byte, contentType string) error {
	putCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(putCtx, http.MethodPut, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create upload request: %w", err)
	}
	request.Header.Set("Content-Type", contentType)
	if c.apiKey != "" {
		request.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("upload transport error: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 300))
		return fmt.Errorf("upload status %d: %s", response.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// publicURL prefers the CDN base when configured, otherwise the direct
// bucket URL.
func (c *RemoteClient) publicURL(objectPath string) string {
	if c.cdnBaseURL != "" {
		return c.cdnBaseURL + "/" + objectPath
	}
	return c.baseURL + "/" + path.Join(c.bucket, objectPath)
}

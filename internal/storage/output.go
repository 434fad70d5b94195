package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path"

	"github.com/voxdoc/voxdoc-back/internal/domain"
)

var (
	// ErrStorageFailed indicates neither the content cache nor durable
	// storage accepted a produced artifact. Fatal for the job.
	ErrStorageFailed = errors.New("all storage tiers failed")

	// ErrArtifactNotFound indicates no tier can produce the artifact.
	ErrArtifactNotFound = errors.New("artifact not found in any tier")
)

// Resolved is the outcome of the retrieval fallback chain: either Data is
// the artifact bytes, or RedirectURL points at the durable copy.
type Resolved struct {
	Data        []byte
	ContentType string
	RedirectURL string
}

// OutputStore cascades artifact persistence across tiers: the local file is
// mirrored into the transient content cache and independently uploaded to
// durable storage. Neither write is a single point of truth; losing one
// tier is logged, losing both is an error.
type OutputStore struct {
	cache  ArtifactCache
	remote *RemoteClient
	logger *log.Logger
}

func NewOutputStore(cache ArtifactCache, remote *RemoteClient, logger *log.Logger) *OutputStore {
	return &OutputStore{cache: cache, remote: remote, logger: logger}
}

// Publish mirrors the artifact into the cache and durable storage and
// returns the resulting reference. The local path stays valid as the first
// retrieval tier until job cleanup.
func (s *OutputStore) Publish(
	ctx context.Context,
	localPath string,
	jobID string,
	kind domain.ArtifactKind,
) (domain.Artifact, error) {
	artifact := domain.Artifact{Kind: kind, LocalPath: localPath}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return artifact, fmt.Errorf("read artifact %s: %w", localPath, err)
	}

	cacheErr := s.cache.Put(ctx, jobID, kind, data)
	if cacheErr == nil {
		artifact.Cached = true
	} else if s.logger != nil {
		s.logger.Printf("artifact cache write failed job_id=%s kind=%s: %v", jobID, kind, cacheErr)
	}

	var remoteErr error
	if s.remote != nil && s.remote.Available() {
		objectPath := path.Join(jobID, fmt.Sprintf("%s%s", kind, extensionFor(kind)))
		remoteURL, uploadErr := s.remote.Upload(ctx, localPath, objectPath, kind.ContentType())
		if uploadErr == nil {
			artifact.RemoteURL = remoteURL
		} else {
			remoteErr = uploadErr
			if s.logger != nil {
				s.logger.Printf("durable upload failed job_id=%s kind=%s: %v", jobID, kind, uploadErr)
			}
		}
	} else {
		remoteErr = ErrRemoteUnavailable
	}

	if cacheErr != nil && remoteErr != nil {
		return artifact, fmt.Errorf("%w: cache: %v; durable: %v", ErrStorageFailed, cacheErr, remoteErr)
	}
	return artifact, nil
}

// Resolve walks the retrieval chain: local file, then content cache, then
// the durable URL as a redirect.
func (s *OutputStore) Resolve(
	ctx context.Context,
	jobID string,
	kind domain.ArtifactKind,
	artifact domain.Artifact,
) (Resolved, error) {
	if artifact.LocalPath != "" {
		data, err := os.ReadFile(artifact.LocalPath)
		if err == nil {
			return Resolved{Data: data, ContentType: kind.ContentType()}, nil
		}
	}

	data, err := s.cache.Get(ctx, jobID, kind)
	if err == nil {
		return Resolved{Data: data, ContentType: kind.ContentType()}, nil
	}
	if !errors.Is(err, ErrCacheMiss) && s.logger != nil {
		s.logger.Printf("artifact cache read failed job_id=%s kind=%s: %v", jobID, kind, err)
	}

	if artifact.RemoteURL != "" {
		return Resolved{RedirectURL: artifact.RemoteURL}, nil
	}
	return Resolved{}, ErrArtifactNotFound
}

func extensionFor(kind domain.ArtifactKind) string {
	if kind == domain.ArtifactAudio {
		return ".mp3"
	}
	return ".pdf"
}

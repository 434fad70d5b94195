package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCallWithTimeoutReturnsValue(t *testing.T) {
	got, err := CallWithTimeout(context.Background(), time.Second, func(_ context.Context) (string, error) {
		return "done", nil
	})
	if err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if got != "done" {
		t.Fatalf("expected %q, got %q", "done", got)
	}
}

func TestCallWithTimeoutAbandonsSlowCall(t *testing.T) {
	started := time.Now()
	_, err := CallWithTimeout(context.Background(), 50*time.Millisecond, func(_ context.Context) (int, error) {
		time.Sleep(2 * time.Second)
		return 42, nil
	})
	if !errors.Is(err, ErrCallTimeout) {
		t.Fatalf("expected ErrCallTimeout, got %v", err)
	}
	if elapsed := time.Since(started); elapsed > time.Second {
		t.Fatalf("expected return shortly after deadline, took %s", elapsed)
	}
}

func TestCallWithTimeoutNormalizesPanics(t *testing.T) {
	_, err := CallWithTimeout(context.Background(), time.Second, func(_ context.Context) (int, error) {
		panic("client library blew up")
	})
	if !errors.Is(err, ErrRemoteService) {
		t.Fatalf("expected ErrRemoteService, got %v", err)
	}
}

func TestCallWithTimeoutHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := CallWithTimeout(ctx, 5*time.Second, func(callCtx context.Context) (int, error) {
		<-callCtx.Done()
		return 0, callCtx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRemoteFailureClassification(t *testing.T) {
	if !RemoteFailure(ErrCallTimeout) {
		t.Fatalf("expected timeout to classify as remote failure")
	}
	if !RemoteFailure(ErrRemoteService) {
		t.Fatalf("expected remote service error to classify as remote failure")
	}
	if RemoteFailure(errors.New("disk full")) {
		t.Fatalf("expected local error to not classify as remote failure")
	}
}

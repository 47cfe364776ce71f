package async_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/agentrun/pkg/utils/async"
	"github.com/secmon-lab/agentrun/pkg/utils/clock"
	"github.com/secmon-lab/agentrun/pkg/utils/logging"
	"github.com/secmon-lab/agentrun/pkg/utils/request_id"
)

func TestDispatch(t *testing.T) {
	t.Run("executes handler asynchronously", func(t *testing.T) {
		ctx := context.Background()
		var wg sync.WaitGroup
		executed := false

		wg.Add(1)
		async.Dispatch(ctx, func(ctx context.Context) error {
			defer wg.Done()
			executed = true
			return nil
		})

		wg.Wait()
		gt.True(t, executed)
	})

	t.Run("handles errors without crashing", func(t *testing.T) {
		ctx := context.Background()
		var wg sync.WaitGroup

		wg.Add(1)
		async.Dispatch(ctx, func(ctx context.Context) error {
			defer wg.Done()
			return errors.New("test error")
		})

		wg.Wait()
		// Test passes if no panic occurs
	})

	t.Run("recovers from panic", func(t *testing.T) {
		ctx := context.Background()
		done := make(chan bool, 1)

		async.Dispatch(ctx, func(ctx context.Context) error {
			defer func() {
				done <- true
			}()
			panic("test panic")
		})

		select {
		case <-done:
			// Test passes if panic was recovered
		case <-time.After(1 * time.Second):
			t.Fatal("handler did not complete within timeout")
		}
	})

	t.Run("preserves context values", func(t *testing.T) {
		now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		ctx := context.Background()
		ctx = request_id.With(ctx, "req-1")
		ctx = clock.With(ctx, func() time.Time { return now })
		ctx = logging.With(ctx, logging.Default())

		var wg sync.WaitGroup
		wg.Add(1)

		async.Dispatch(ctx, func(newCtx context.Context) error {
			defer wg.Done()

			gt.Equal(t, request_id.FromContext(newCtx), "req-1")
			gt.Equal(t, clock.Now(newCtx), now)
			gt.NotNil(t, logging.From(newCtx))

			return nil
		})

		wg.Wait()
	})

	t.Run("detaches from cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())

		var wg sync.WaitGroup
		wg.Add(1)

		async.Dispatch(ctx, func(newCtx context.Context) error {
			defer wg.Done()

			// Cancel original context
			cancel()

			// New context should not be affected
			select {
			case <-newCtx.Done():
				t.Error("new context was cancelled")
			default:
				// Expected: context is not cancelled
			}

			return nil
		})

		wg.Wait()
	})
}

func TestGo(t *testing.T) {
	t.Run("done is closed after handler", func(t *testing.T) {
		ran := false
		done := async.Go(context.Background(), func(ctx context.Context) error {
			ran = true
			return errors.New("reported")
		})

		select {
		case <-done:
			gt.True(t, ran)
		case <-time.After(time.Second):
			t.Fatal("handler did not complete")
		}
	})

	t.Run("follows cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		done := async.Go(ctx, func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
		cancel()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("handler ignored cancellation")
		}
	})

	t.Run("recovers from panic", func(t *testing.T) {
		done := async.Go(context.Background(), func(ctx context.Context) error {
			panic("broken line")
		})

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("panic was not recovered")
		}
	})
}

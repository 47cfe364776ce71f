package errs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/agentrun/pkg/utils/logging"
	"github.com/secmon-lab/agentrun/pkg/utils/request_id"
)

// reportedTag pairs a goerr tag with its Sentry "kind" name. The tag type is
// unexported by goerr, so it is inferred through kindTag.
type reportedTag[T any] struct {
	tag  T
	name string
}

func kindTag[T any](tag T, name string) reportedTag[T] {
	return reportedTag[T]{tag: tag, name: name}
}

func kindTags[T any](tags ...reportedTag[T]) []reportedTag[T] {
	return tags
}

// reportedTags are copied to Sentry events as the "kind" tag, first match wins
var reportedTags = kindTags(
	kindTag(TagValidation, "validation"),
	kindTag(TagNotFound, "not_found"),
	kindTag(TagInvalidState, "invalid_state"),
	kindTag(TagExternal, "external"),
	kindTag(TagTimeout, "timeout"),
	kindTag(TagDatabase, "database"),
	kindTag(TagInternal, "internal"),
)

// IsCancelled reports whether err comes from a cancelled run or a closed
// connection rather than a failure.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || goerr.HasTag(err, TagCancelled)
}

// Handle logs err and sends it to Sentry. Cancellations are logged only.
func Handle(ctx context.Context, err error) {
	if err == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "[CRITICAL] logger crashed while handling error: error=%s, panic=%v\n",
				err.Error(), r)
		}
	}()

	logger := logging.From(ctx)
	if IsCancelled(err) {
		logger.Info("Cancelled: "+err.Error(), slog.Any("error", err))
		return
	}

	evID := capture(ctx, err)
	logger.Error("Error: "+err.Error(), slog.Any("error", err), slog.Any("sentry.id", evID))
}

func capture(ctx context.Context, err error) *sentry.EventID {
	hub := sentry.CurrentHub().Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		if reqID := request_id.FromContext(ctx); reqID != "" {
			scope.SetTag("request_id", reqID)
		}
		for _, r := range reportedTags {
			if goerr.HasTag(err, r.tag) {
				scope.SetTag("kind", r.name)
				break
			}
		}
		for k, v := range goerr.Values(err) {
			scope.SetExtra(k, v)
		}
	})
	return hub.CaptureException(err)
}

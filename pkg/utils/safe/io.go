// Package safe wraps cleanup I/O whose failures can only be logged.
package safe

import (
	"context"
	"io"
	"log/slog"

	"github.com/secmon-lab/agentrun/pkg/utils/logging"
)

// maxDrain bounds how much of an unread response body is consumed before close
const maxDrain = 64 << 10

func Close(ctx context.Context, closer io.Closer) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.From(ctx).Warn("failed to close", slog.Any("error", err))
	}
}

// Copy streams src into dst and returns the bytes written. A client that
// goes away in the middle of a download is logged, not reported.
func Copy(ctx context.Context, dst io.Writer, src io.Reader) int64 {
	n, err := io.Copy(dst, src)
	if err != nil {
		logging.From(ctx).Warn("copy is interrupted",
			slog.Any("error", err),
			slog.Int64("written", n),
		)
	}
	return n
}

// Drain reads the rest of an HTTP response body and closes it so the
// keep-alive connection can be reused.
func Drain(ctx context.Context, body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, body, maxDrain)
	Close(ctx, body)
}

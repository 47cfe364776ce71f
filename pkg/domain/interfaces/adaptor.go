package interfaces

import (
	"context"
	"io"
	"net/http"

	"github.com/secmon-lab/agentrun/pkg/domain/model/session"
	"github.com/secmon-lab/agentrun/pkg/domain/types"
)

// StorageClient stores run artifacts and run logs as named objects
type StorageClient interface {
	PutObject(ctx context.Context, object string) io.WriteCloser
	GetObject(ctx context.Context, object string) (io.ReadCloser, error)
	// ListObjects returns names under prefix with the prefix removed, sorted
	ListObjects(ctx context.Context, prefix string) ([]string, error)
	Close(ctx context.Context)
}

// Notifier is a publish/subscribe channel of catalog changes scoped by identity
type Notifier interface {
	Publish(ctx context.Context, change session.CatalogChange) error
	// Subscribe delivers changes of scope until ctx is cancelled, then closes the channel
	Subscribe(ctx context.Context, scope types.Scope) (<-chan session.CatalogChange, error)
	Close() error
}

// StreamConn is one bidirectional run connection. *websocket.Conn satisfies it.
type StreamConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// DialFunc opens a run connection
type DialFunc func(ctx context.Context, url string, header http.Header) (StreamConn, error)

package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/agentrun/pkg/domain/interfaces"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
	"github.com/secmon-lab/agentrun/pkg/utils/safe"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Client stores objects in a Google Cloud Storage bucket under an optional prefix
type Client struct {
	client *storage.Client
	bucket string
	prefix string
}

var _ interfaces.StorageClient = &Client{}

func New(ctx context.Context, bucket, prefix string, opts ...option.ClientOption) (*Client, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}

	return &Client{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}, nil
}

func (x *Client) objectName(object string) string {
	if x.prefix == "" {
		return object
	}
	return path.Join(x.prefix, object)
}

func (x *Client) PutObject(ctx context.Context, object string) io.WriteCloser {
	return x.client.Bucket(x.bucket).Object(x.objectName(object)).NewWriter(ctx)
}

func (x *Client) GetObject(ctx context.Context, object string) (io.ReadCloser, error) {
	rc, err := x.client.Bucket(x.bucket).Object(x.objectName(object)).NewReader(ctx)
	if err != nil {
		opts := []goerr.Option{
			goerr.V("bucket", x.bucket),
			goerr.V("object", object),
		}
		if errors.Is(err, storage.ErrObjectNotExist) {
			opts = append(opts, goerr.T(errs.TagNotFound))
		} else {
			opts = append(opts, goerr.T(errs.TagExternal))
		}
		return nil, goerr.Wrap(err, "failed to create reader", opts...)
	}

	return rc, nil
}

func (x *Client) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	base := x.objectName(prefix)
	it := x.client.Bucket(x.bucket).Objects(ctx, &storage.Query{
		Prefix:    base,
		Delimiter: "/",
	})

	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list objects",
				goerr.V("bucket", x.bucket),
				goerr.V("prefix", base),
				goerr.T(errs.TagExternal),
			)
		}
		// sub directories are reported with an empty Name
		if attrs.Name == "" {
			continue
		}
		name := strings.TrimPrefix(attrs.Name, base)
		if name == "" {
			continue
		}
		names = append(names, name)
	}

	sort.Strings(names)
	return names, nil
}

func (x *Client) Close(ctx context.Context) {
	safe.Close(ctx, x.client)
}

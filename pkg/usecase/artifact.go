package usecase

import (
	"context"
	"io"
	"slices"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/agentrun/pkg/domain/model/artifact"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
	"github.com/secmon-lab/agentrun/pkg/domain/types"
	"github.com/secmon-lab/agentrun/pkg/service/agent"
	"github.com/secmon-lab/agentrun/pkg/service/preview"
	"github.com/secmon-lab/agentrun/pkg/utils/safe"
)

// ListFiles returns the names of the generated files, sorted
func (u *UseCases) ListFiles(ctx context.Context) ([]string, error) {
	files, err := u.storageClient.ListObjects(ctx, agent.WorkspacePrefix)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list generated files")
	}
	if files == nil {
		files = []string{}
	}
	return files, nil
}

// OpenFile opens a generated file. Names must be plain file names.
func (u *UseCases) OpenFile(ctx context.Context, name string) (io.ReadCloser, error) {
	if !artifact.ValidName(name) {
		return nil, goerr.New("invalid file name", goerr.TV(errs.FileNameKey, name), goerr.T(errs.TagValidation))
	}

	r, err := u.storageClient.GetObject(ctx, agent.WorkspacePrefix+name)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open generated file", goerr.TV(errs.FileNameKey, name))
	}
	return r, nil
}

func (u *UseCases) readFile(ctx context.Context, name string) (string, error) {
	rc, err := u.OpenFile(ctx, name)
	if err != nil {
		return "", err
	}
	defer safe.Close(ctx, rc)

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", goerr.Wrap(err, "failed to read generated file",
			goerr.TV(errs.FileNameKey, name), goerr.T(errs.TagExternal))
	}
	return string(data), nil
}

// PreviewFile renders a React component file, styled by styles.css when the
// run produced one.
func (u *UseCases) PreviewFile(ctx context.Context, name string) (string, error) {
	if kind := artifact.Classify(name); kind != types.FileKindReact {
		return "", goerr.New("file is not a React component",
			goerr.TV(errs.FileNameKey, name),
			goerr.V("kind", kind),
			goerr.T(errs.TagValidation))
	}

	source, err := u.readFile(ctx, name)
	if err != nil {
		return "", err
	}

	files, err := u.ListFiles(ctx)
	if err != nil {
		return "", err
	}
	var css string
	if slices.Contains(files, preview.StylesheetName) {
		if css, err = u.readFile(ctx, preview.StylesheetName); err != nil {
			return "", err
		}
	}

	doc, err := preview.Render(name, source, css)
	if err != nil {
		return "", err
	}
	return doc.HTML, nil
}

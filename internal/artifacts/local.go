package artifacts

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"subforge/internal/fileutil"
)

// Local keeps artifacts inside the job workspace under root and serves them
// through the daemon API.
type Local struct {
	root    string
	baseURL string
}

// NewLocal returns a local store rooted at the staging directory.
func NewLocal(root, baseURL string) *Local {
	return &Local{root: root, baseURL: strings.TrimRight(baseURL, "/")}
}

// Name implements Store.
func (l *Local) Name() string { return "local" }

// Publish copies localPath into <root>/<jobID>/<name> when it is not already
// there and returns the API download URL.
func (l *Local) Publish(ctx context.Context, jobID, localPath, name, _ string) (string, error) {
	if err := checkArgs(jobID, name); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dst := filepath.Join(l.root, jobID, name)
	info, err := os.Stat(localPath)
	if err != nil {
		return "", publishFailed("stat", "artifact missing", err)
	}
	if info.Size() == 0 {
		return "", publishFailed("stat", "artifact is empty", nil)
	}
	if filepath.Clean(localPath) != filepath.Clean(dst) {
		if err := fileutil.CopyFile(localPath, dst); err != nil {
			return "", publishFailed("copy", "copy artifact into workspace", err)
		}
	}
	return l.URL(jobID, name), nil
}

// URL returns the download URL for a published artifact.
func (l *Local) URL(jobID, name string) string {
	return fmt.Sprintf("%s/artifacts/%s/%s", l.baseURL, url.PathEscape(jobID), url.PathEscape(name))
}

// Open resolves a published artifact for download.
func (l *Local) Open(jobID, name string) (string, error) {
	if !ValidName(jobID) || !ValidName(name) {
		return "", os.ErrNotExist
	}
	target := filepath.Join(l.root, jobID, name)
	info, err := os.Stat(target)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", os.ErrNotExist
	}
	return target, nil
}

// Remove deletes the job directory.
func (l *Local) Remove(_ context.Context, jobID string) error {
	if !ValidName(jobID) {
		return nil
	}
	if err := os.RemoveAll(filepath.Join(l.root, jobID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove local artifacts for %s: %w", jobID, err)
	}
	return nil
}

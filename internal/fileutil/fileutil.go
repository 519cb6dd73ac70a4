// Package fileutil holds file copy helpers shared by the artifact store and CLI.
package fileutil

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CopyFile copies src to dst through a sibling temp file and a rename, so dst
// is either absent or complete. Parent directories are created.
func CopyFile(src, dst string) error {
	_, err := copyAtomic(src, dst, false)
	return err
}

// CopyFileVerified is CopyFile plus a size and SHA-256 comparison between the
// bytes read and the bytes written. dst is left untouched on mismatch.
func CopyFileVerified(src, dst string) error {
	_, err := copyAtomic(src, dst, true)
	return err
}

func copyAtomic(src, dst string, verify bool) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat source: %w", err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("copy source %q is a directory", src)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()
	fail := func(err error) (int64, error) {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return 0, err
	}

	var reader io.Reader = in
	var writer io.Writer = tmp
	srcHash, dstHash := sha256.New(), sha256.New()
	if verify {
		reader = io.TeeReader(in, srcHash)
		writer = io.MultiWriter(tmp, dstHash)
	}
	written, err := io.Copy(writer, reader)
	if err != nil {
		return fail(err)
	}
	if verify {
		if written != info.Size() {
			return fail(fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", info.Size(), written))
		}
		if !bytes.Equal(srcHash.Sum(nil), dstHash.Sum(nil)) {
			return fail(fmt.Errorf("copy hash mismatch: file corrupted during copy"))
		}
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return 0, err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return 0, err
	}
	return written, nil
}

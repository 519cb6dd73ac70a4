package extract

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"subforge/internal/services"
)

// SourceKind discriminates the Source union.
type SourceKind string

const (
	SourceBytes SourceKind = "bytes"
	SourceURL   SourceKind = "url"
	SourceFile  SourceKind = "file"
)

// Source is a submitted video. Exactly one of Data, URL, or Path is used,
// selected by Kind.
type Source struct {
	Kind SourceKind
	Data []byte
	URL  string
	Path string
	// Name is the caller-supplied file name, used only for logging.
	Name string
	// Spooled marks a file-backed upload the pipeline takes ownership of.
	Spooled bool
}

// FromBytes wraps uploaded file contents.
func FromBytes(data []byte, name string) Source {
	return Source{Kind: SourceBytes, Data: data, Name: strings.TrimSpace(name)}
}

// FromURL wraps a remote location.
func FromURL(location string) Source {
	return Source{Kind: SourceURL, URL: strings.TrimSpace(location)}
}

// FromFile wraps a file already on local disk. The file is read in place and
// never deleted by the pipeline.
func FromFile(path string) Source {
	return Source{Kind: SourceFile, Path: strings.TrimSpace(path)}
}

// FromUpload wraps an upload already spooled to path. Resolve moves the file
// into the job workspace and removes its spool directory once empty.
func FromUpload(path, name string) Source {
	return Source{Kind: SourceFile, Path: strings.TrimSpace(path), Name: strings.TrimSpace(name), Spooled: true}
}

// Discard removes a spooled upload that never reached Resolve. It is a no-op
// for every other source.
func (s Source) Discard() error {
	if !s.Spooled || s.Path == "" {
		return nil
	}
	if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(filepath.Dir(s.Path)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Describe returns a short label for logs and job records.
func (s Source) Describe() string {
	switch s.Kind {
	case SourceBytes:
		if s.Name != "" {
			return "upload:" + s.Name
		}
		return fmt.Sprintf("upload:%d bytes", len(s.Data))
	case SourceURL:
		return s.URL
	case SourceFile:
		if s.Spooled {
			if s.Name != "" {
				return "upload:" + s.Name
			}
			return "upload:" + filepath.Base(s.Path)
		}
		return s.Path
	default:
		return "unknown"
	}
}

// Validate rejects sources that carry neither bytes nor a usable location.
func (s Source) Validate() error {
	switch s.Kind {
	case SourceBytes:
		if len(s.Data) == 0 {
			return services.Fail(services.KindInvalidSource, "extracting", "validate source", "uploaded file is empty", nil)
		}
	case SourceURL:
		parsed, err := url.Parse(s.URL)
		if err != nil || s.URL == "" {
			return services.Fail(services.KindInvalidSource, "extracting", "validate source", "video url is not valid", err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return services.Fail(services.KindInvalidSource, "extracting", "validate source", fmt.Sprintf("unsupported url scheme %q", parsed.Scheme), nil)
		}
		if parsed.Host == "" {
			return services.Fail(services.KindInvalidSource, "extracting", "validate source", "video url has no host", nil)
		}
	case SourceFile:
		if s.Path == "" {
			return services.Fail(services.KindInvalidSource, "extracting", "validate source", "video path is empty", nil)
		}
	default:
		return services.Fail(services.KindInvalidSource, "extracting", "validate source", "neither file bytes nor url provided", nil)
	}
	return nil
}

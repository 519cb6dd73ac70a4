package api

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"subforge/internal/extract"
	"subforge/internal/mux"
	"subforge/internal/pipeline"
	"subforge/internal/services"
)

const (
	// multipartOverhead leaves room for form fields around the file part.
	multipartOverhead = 1 << 20
	uploadDirPrefix   = "upload-"
)

// parseRequest builds a pipeline request from a multipart upload, an
// urlencoded form or a JSON body.
func (s *Server) parseRequest(c *gin.Context) (pipeline.Request, error) {
	limit := s.cfg.MaxUploadBytes()
	if limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)
	}

	var body SubmitRequest
	var source extract.Source
	contentType := c.ContentType()
	switch contentType {
	case binding.MIMEMultipartPOSTForm:
		if err := c.ShouldBindWith(&body, binding.FormMultipart); err != nil {
			return pipeline.Request{}, bodyError(err)
		}
		header, err := c.FormFile("file")
		switch {
		case err == nil:
			if limit > 0 && header.Size > limit {
				return pipeline.Request{}, tooLarge(header.Size, limit)
			}
			source, err = s.spoolUpload(c, header)
			if err != nil {
				return pipeline.Request{}, err
			}
		case errors.Is(err, http.ErrMissingFile):
			source = extract.FromURL(body.URL)
		default:
			return pipeline.Request{}, bodyError(err)
		}
	case binding.MIMEPOSTForm:
		if err := c.ShouldBindWith(&body, binding.Form); err != nil {
			return pipeline.Request{}, bodyError(err)
		}
		source = extract.FromURL(body.URL)
	default:
		if err := c.ShouldBindJSON(&body); err != nil {
			return pipeline.Request{}, bodyError(err)
		}
		source = extract.FromURL(body.URL)
	}

	mode, err := mux.ParseMode(body.Mode)
	if err != nil {
		_ = source.Discard()
		return pipeline.Request{}, services.Fail(services.KindInvalidSource, string(pipeline.StageIdle), "mode", err.Error(), nil)
	}
	if strings.TrimSpace(body.Mode) == "" {
		mode = ""
	}
	return pipeline.Request{
		UserID:         userFrom(c),
		Source:         source,
		SourceLanguage: body.SourceLanguage,
		TargetLanguage: body.TargetLanguage,
		Mode:           mode,
	}, nil
}

// spoolUpload writes the multipart file part into its own directory under the
// staging root so large uploads are never held in memory.
func (s *Server) spoolUpload(c *gin.Context, header *multipart.FileHeader) (extract.Source, error) {
	if err := os.MkdirAll(s.cfg.Paths.StagingDir, 0o755); err != nil {
		return extract.Source{}, services.Fail(services.KindInternal, string(pipeline.StageIdle), "upload", "staging directory unavailable", err)
	}
	dir, err := os.MkdirTemp(s.cfg.Paths.StagingDir, uploadDirPrefix)
	if err != nil {
		return extract.Source{}, services.Fail(services.KindInternal, string(pipeline.StageIdle), "upload", "could not spool uploaded file", err)
	}
	source := extract.FromUpload(filepath.Join(dir, "upload"), header.Filename)
	if err := c.SaveUploadedFile(header, source.Path); err != nil {
		_ = os.RemoveAll(dir)
		return extract.Source{}, services.Fail(services.KindInvalidSource, string(pipeline.StageIdle), "upload", "could not read uploaded file", err)
	}
	return source, nil
}

func bodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
		return services.Fail(services.KindInputTooLarge, string(pipeline.StageIdle), "upload",
			"request body exceeds the upload limit", err)
	}
	return services.Fail(services.KindInvalidSource, string(pipeline.StageIdle), "parse", "request body could not be parsed", err)
}

func tooLarge(size, limit int64) error {
	return services.Fail(services.KindInputTooLarge, string(pipeline.StageIdle), "upload",
		fmt.Sprintf("upload is %d bytes, limit is %d bytes", size, limit), nil)
}

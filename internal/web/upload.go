package web

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/crmimport/internal/core"
)

// multipartMemory is the part of a multipart form kept in memory; the rest
// spills to temporary files.
const multipartMemory = 8 << 20

// upload is a parsed multipart upload. Close releases the file and any
// temporary files backing the form.
type upload struct {
	core.File
	file multipart.File
	form *multipart.Form
}

func (u *upload) Close() error {
	err := u.file.Close()
	if u.form != nil {
		_ = u.form.RemoveAll()
	}
	return err
}

// readUpload reads the "file" part of a multipart request, bounded by the
// configured maximum file size. The format comes from the "format" field
// when present, otherwise from the file name.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.service.MaxFileSize())

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large") {
			return nil, fmt.Errorf("%w: limit is %d bytes", errFileTooLarge, s.service.MaxFileSize())
		}
		return nil, fmt.Errorf("%w: %v", errNoFile, err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		_ = r.MultipartForm.RemoveAll()
		return nil, fmt.Errorf("%w: %v", errNoFile, err)
	}

	var format core.Format
	if declared := r.FormValue("format"); declared != "" {
		format, err = core.ParseFormat(declared)
	} else {
		format, err = core.FormatFromFilename(header.Filename)
	}
	if err != nil {
		file.Close()
		_ = r.MultipartForm.RemoveAll()
		return nil, err
	}

	return &upload{
		File: core.File{
			Name:   header.Filename,
			Format: format,
			Reader: file,
			Size:   header.Size,
		},
		file: file,
		form: r.MultipartForm,
	}, nil
}

// parseOptions reads skipDuplicates and batchSize from the form, falling
// back to the service defaults.
func (s *Server) parseOptions(r *http.Request) (core.ImportOptions, error) {
	opts := s.service.DefaultOptions()

	if v := r.FormValue("skipDuplicates"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("%w: skipDuplicates %q is not a boolean", core.ErrInvalidOptions, v)
		}
		opts.SkipDuplicates = b
	}
	if v := r.FormValue("batchSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, fmt.Errorf("%w: batchSize %q is not a number", core.ErrInvalidOptions, v)
		}
		opts.BatchSize = n
	}
	return opts, opts.Validate()
}

// statusFor returns the response status for errors raised by the handlers.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errNoFile):
		return http.StatusBadRequest
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	}
	return core.HTTPStatus(err)
}

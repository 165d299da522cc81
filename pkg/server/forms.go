package server

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"folio/pkg/apierr"
	"folio/pkg/resource"

	"github.com/labstack/echo/v4"
)

const formMemory = 32 << 20

// form is a parsed multipart or urlencoded request body.
type form struct {
	values url.Values
	files  map[string][]*multipart.FileHeader
}

func readForm(ctx echo.Context) (*form, error) {
	req := ctx.Request()

	err := req.ParseMultipartForm(formMemory)
	switch {
	case err == nil:
		return &form{values: req.MultipartForm.Value, files: req.MultipartForm.File}, nil
	case errors.Is(err, http.ErrNotMultipart):
		if err := req.ParseForm(); err != nil {
			return nil, apierr.Validation("Invalid form data")
		}
		return &form{values: req.PostForm}, nil
	default:
		return nil, apierr.Validation("Invalid form data")
	}
}

func (f *form) value(key string) string {
	return f.values.Get(key)
}

// field returns nil when key is absent from the form.
func (f *form) field(key string) *string {
	if _, ok := f.values[key]; !ok {
		return nil
	}
	v := f.values.Get(key)
	return &v
}

func (f *form) all(key string) []string {
	return f.values[key]
}

func (f *form) uploads(key string) []resource.Upload {
	headers := f.files[key]
	out := make([]resource.Upload, 0, len(headers))
	for _, fh := range headers {
		fh := fh
		out = append(out, resource.Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get(echo.HeaderContentType),
			Size:        fh.Size,
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}
	return out
}

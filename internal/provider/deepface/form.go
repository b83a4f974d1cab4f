package deepface

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/provider"
)

// Form is a multipart/form-data request body. Errors are deferred to encode
// so fields can be chained.
type Form struct {
	buf    bytes.Buffer
	writer *multipart.Writer
	err    error
}

// NewForm creates an empty multipart form
func NewForm() *Form {
	f := &Form{}
	f.writer = multipart.NewWriter(&f.buf)
	return f
}

// Field appends a text field
func (f *Form) Field(name, value string) *Form {
	if f.err != nil {
		return f
	}
	f.err = f.writer.WriteField(name, value)
	return f
}

// OptionalField appends a text field only when value is not empty, leaving
// the choice to the service otherwise
func (f *Form) OptionalField(name, value string) *Form {
	if value == "" {
		return f
	}
	return f.Field(name, value)
}

// File appends a file part carrying the image content type
func (f *Form) File(name string, image provider.Image) *Form {
	if f.err != nil {
		return f
	}

	filename := image.Name
	if filename == "" {
		filename = name
	}
	contentType := image.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(name), escapeQuotes(filename)))
	h.Set("Content-Type", contentType)

	part, err := f.writer.CreatePart(h)
	if err != nil {
		f.err = err
		return f
	}
	_, f.err = part.Write(image.Data)
	return f
}

// encode closes the writer and returns the body with its boundary-bearing
// content type
func (f *Form) encode() (io.Reader, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	if err := f.writer.Close(); err != nil {
		return nil, "", err
	}
	return bytes.NewReader(f.buf.Bytes()), f.writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

package daemon

import (
	"io"
	"mime/multipart"
	"testing"
)

// multipartWriter writes fields plus one file part and returns the content
// type to send.
func multipartWriter(t *testing.T, w io.Writer, fields map[string]string, fileField, content string) string {
	t.Helper()

	mw := multipart.NewWriter(w)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}

	fw, err := mw.CreateFormFile(fileField, "cookies.txt")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(fw, content); err != nil {
		t.Fatal(err)
	}

	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	return mw.FormDataContentType()
}

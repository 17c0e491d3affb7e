package scraper

import (
	"bytes"
	"io"
	"net/http"

	"github.com/FranksOps/codescout/internal/storage"
	"golang.org/x/net/html/charset"
)

// BodyReader returns the record's body decoded to UTF-8. The encoding comes
// from the Content-Type charset, a BOM or a <meta> declaration, in that
// order of preference; unknown encodings are passed through unchanged.
func BodyReader(record *storage.FetchRecord) io.Reader {
	raw := bytes.NewReader(record.Body)
	r, err := charset.NewReader(raw, http.Header(record.Headers).Get("Content-Type"))
	if err != nil {
		return bytes.NewReader(record.Body)
	}
	return r
}

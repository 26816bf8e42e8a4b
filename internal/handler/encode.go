package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/vincent-petithory/dataurl"

	"github.com/fruitsalade/hostyoself/internal/catalog"
)

const defaultMediaType = "application/octet-stream"

var errNoContent = errors.New("entry has no content")

// ReadDataURI reads an entry in full and encodes it as a base64 data URI.
func ReadDataURI(ctx context.Context, e *catalog.Entry) (string, error) {
	if e.Content == nil {
		return "", errNoContent
	}
	rc, err := e.Content.Open(ctx)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", e.Path(), err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", e.Path(), err)
	}
	return EncodeDataURI(e.Name, data), nil
}

// EncodeDataURI encodes data with a media type taken from the file
// extension, or sniffed from the bytes when the extension is unknown.
func EncodeDataURI(name string, data []byte) string {
	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = mimetype.Detect(data).String()
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || strings.Count(mediaType, "/") != 1 {
		mediaType, params = defaultMediaType, nil
	}
	pairs := make([]string, 0, 2*len(params))
	for k, v := range params {
		pairs = append(pairs, k, v)
	}
	return dataurl.New(data, mediaType, pairs...).String()
}

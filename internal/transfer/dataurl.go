package transfer

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
)

const defaultMIMEType = "application/octet-stream"

// DataURLCodec carries the whole file as a base64 data URL, the shape a
// browser FileReader produces with readAsDataURL.
type DataURLCodec struct{}

func NewDataURLCodec() *DataURLCodec {
	return &DataURLCodec{}
}

func (c *DataURLCodec) Encode(f File) (Envelope, error) {
	if f.Name == "" {
		return Envelope{}, fmt.Errorf("encode: file has no name")
	}

	mimeType := DetectMIMEType(f.Name, f.Content)
	payload := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(f.Content)

	return Envelope{Payload: payload, Name: f.Name}, nil
}

func (c *DataURLCodec) Decode(env Envelope) (DownloadableFile, error) {
	if env.Payload == "" || env.Name == "" {
		return DownloadableFile{}, fmt.Errorf("%w: envelope needs payload and name", ErrMalformedMessage)
	}

	mimeType, content, err := parseDataURL(env.Payload)
	if err != nil {
		return DownloadableFile{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	return DownloadableFile{
		Name:     env.Name,
		MIMEType: mimeType,
		Href:     env.Payload,
		Content:  content,
	}, nil
}

// DetectMIMEType guesses from the extension first and the content second.
// Parameters such as charset are dropped.
func DetectMIMEType(name string, content []byte) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return bareMediaType(t)
	}
	if len(content) == 0 {
		return defaultMIMEType
	}
	return bareMediaType(http.DetectContentType(content))
}

func bareMediaType(t string) string {
	mediaType, _, err := mime.ParseMediaType(t)
	if err != nil || mediaType == "" {
		return defaultMIMEType
	}
	return mediaType
}

// parseDataURL accepts data:[<mime>][;params][;base64],<data>.
func parseDataURL(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, fmt.Errorf("payload is not a data URL")
	}

	// Chrome produces a bare "data:" for empty files.
	if rest == "" {
		return defaultMIMEType, []byte{}, nil
	}

	header, data, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("data URL has no comma")
	}

	isBase64 := false
	params := strings.Split(header, ";")
	mimeType := params[0]
	for _, p := range params[1:] {
		if p == "base64" {
			isBase64 = true
		}
	}
	if mimeType == "" {
		mimeType = defaultMIMEType
	}

	if isBase64 {
		content, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return "", nil, fmt.Errorf("decode base64: %w", err)
		}
		return mimeType, content, nil
	}

	unescaped, err := url.PathUnescape(data)
	if err != nil {
		return "", nil, fmt.Errorf("unescape: %w", err)
	}
	return mimeType, []byte(unescaped), nil
}

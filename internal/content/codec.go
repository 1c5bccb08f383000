package content

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ohowe1/clipboard/internal/xerrors"
)

// ErrParse is wrapped by every Unmarshal failure.
var ErrParse = errors.New("content: unparseable record")

type record struct {
	Content *wire `json:"content"`
}

type wire struct {
	Type      Kind   `json:"type"`
	Text      string `json:"text,omitempty"`
	URL       string `json:"url,omitempty"`
	BucketKey string `json:"bucket_key,omitempty"`
	FileName  string `json:"file_name,omitempty"`
	MimeType  string `json:"mime_type,omitempty"`
}

// Marshal encodes c as a tagged record. It refuses values Unmarshal would
// reject, so a record it writes always reads back.
func Marshal(c Content) ([]byte, error) {
	var w wire
	switch v := c.(type) {
	case Text:
		w = wire{Type: KindText, Text: v.Body}
	case Link:
		if !validURL(v.URL) {
			return nil, xerrors.Validation("invalid url")
		}
		w = wire{Type: KindLink, URL: v.URL}
	case File:
		if v.BlobKey == "" {
			return nil, xerrors.Validation("file without blob key")
		}
		w = wire{Type: KindFile, BucketKey: v.BlobKey, FileName: v.FileName, MimeType: v.MimeType}
	default:
		return nil, xerrors.Newf("content: cannot marshal %T", c)
	}
	b, err := json.Marshal(record{Content: &w})
	if err != nil {
		return nil, xerrors.Wrap(err, "content: marshal")
	}
	return b, nil
}

// Unmarshal decodes a record written by Marshal.
func Unmarshal(b []byte) (Content, error) {
	if len(b) == 0 {
		return nil, parseErr("empty record")
	}
	var rec record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, parseErr(err.Error())
	}
	if rec.Content == nil {
		return nil, parseErr("missing content object")
	}
	w := rec.Content
	switch w.Type {
	case KindText:
		return Text{Body: w.Text}, nil
	case KindLink:
		if !validURL(w.URL) {
			return nil, parseErr("url is not absolute")
		}
		return Link{URL: w.URL}, nil
	case KindFile:
		if w.BucketKey == "" {
			return nil, parseErr("file without bucket_key")
		}
		return File{BlobKey: w.BucketKey, FileName: w.FileName, MimeType: w.MimeType}, nil
	default:
		return nil, parseErr(fmt.Sprintf("unknown type %q", w.Type))
	}
}

func parseErr(detail string) error {
	return xerrors.WithStack(fmt.Errorf("%w: %s", ErrParse, detail))
}

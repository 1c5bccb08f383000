package content

import (
	"net/url"
	"strings"

	"github.com/ohowe1/clipboard/internal/xerrors"
)

// Kind is the wire discriminator of a Content value.
type Kind string

const (
	KindText Kind = "text"
	KindLink Kind = "url"
	KindFile Kind = "file"
)

// Content is one of Text, Link or File.
type Content interface {
	Kind() Kind
	sealed()
}

type Text struct {
	Body string
}

type Link struct {
	URL string
}

// File references bytes stored elsewhere. FileName is only a download hint.
type File struct {
	BlobKey  string
	FileName string
	MimeType string
}

func (Text) Kind() Kind { return KindText }
func (Link) Kind() Kind { return KindLink }
func (File) Kind() Kind { return KindFile }

func (Text) sealed() {}
func (Link) sealed() {}
func (File) sealed() {}

func NewText(body string) Text { return Text{Body: body} }

// NewLink validates raw as an absolute URL.
func NewLink(raw string) (Link, error) {
	raw = strings.TrimSpace(raw)
	if !validURL(raw) {
		return Link{}, xerrors.Validation("invalid url")
	}
	return Link{URL: raw}, nil
}

func NewFile(blobKey, fileName, mimeType string) File {
	return File{BlobKey: blobKey, FileName: fileName, MimeType: mimeType}
}

func validURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return false
	}
	return u.Host != "" || u.Opaque != ""
}

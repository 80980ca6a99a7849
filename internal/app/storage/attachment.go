package storage

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"chatterbox/internal/pkg/errs"
	"chatterbox/internal/pkg/randx"
)

// DefaultMaxAttachmentSize bounds an attachment or avatar when no limit is configured.
const DefaultMaxAttachmentSize = 5 * 1024 * 1024

// Kind selects the content allowlist applied by Inspect.
type Kind int

const (
	KindAttachment Kind = iota
	KindAvatar
)

// allowedAttachmentTypes are accepted beyond the image/audio/video families.
var allowedAttachmentTypes = map[string]struct{}{
	"application/pdf": {},
	"text/plain":      {},
}

// Inspected is the sniffed description of an uploaded file.
type Inspected struct {
	ContentType string
	Extension   string
	Size        int64
}

// Inspect sniffs data and checks it against the allowlist for kind and the size limit.
// The declared client content type is ignored.
func Inspect(data []byte, kind Kind, maxSize int64) (*Inspected, *errs.CustomError) {
	if maxSize <= 0 {
		maxSize = DefaultMaxAttachmentSize
	}

	size := int64(len(data))
	if size == 0 {
		return nil, errs.NewError(errs.ErrInvalidParams)
	}
	if size > maxSize {
		return nil, errs.NewError(errs.ErrFileSizeTooLarge)
	}

	mt := mimetype.Detect(data)
	contentType, _, _ := strings.Cut(mt.String(), ";")
	family, _, _ := strings.Cut(contentType, "/")

	switch kind {
	case KindAvatar:
		if family != "image" {
			return nil, errs.NewError(errs.ErrFileTypeInvalid)
		}
	default:
		_, extra := allowedAttachmentTypes[contentType]
		if family != "image" && family != "audio" && family != "video" && !extra {
			return nil, errs.NewError(errs.ErrFileTypeInvalid)
		}
	}

	return &Inspected{ContentType: contentType, Extension: mt.Extension(), Size: size}, nil
}

// ObjectKey builds a collision-free key: prefix/yyyy/mm/<id><ext>.
func ObjectKey(prefix, ext string) (string, error) {
	suffix, err := randx.Suffix()
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(filepath.Join(
		prefix,
		time.Now().UTC().Format("2006/01"),
		randx.ID()+"-"+suffix+strings.ToLower(ext),
	)), nil
}

// DisplayName strips any client-supplied directory from name.
func DisplayName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" {
		return ""
	}
	return base
}

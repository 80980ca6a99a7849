package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"chatterbox/internal/pkg/errs"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

func TestInspect(t *testing.T) {
	pdf := []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")

	cases := []struct {
		name    string
		data    []byte
		kind    Kind
		maxSize int64
		code    int
		typ     string
	}{
		{"png attachment", pngBytes, KindAttachment, 0, 0, "image/png"},
		{"png avatar", pngBytes, KindAvatar, 0, 0, "image/png"},
		{"pdf attachment", pdf, KindAttachment, 0, 0, "application/pdf"},
		{"pdf avatar", pdf, KindAvatar, 0, errs.ErrFileTypeInvalid, ""},
		{"binary attachment", []byte{0x00, 0x01, 0x02, 0x03}, KindAttachment, 0, errs.ErrFileTypeInvalid, ""},
		{"too large", pngBytes, KindAttachment, 8, errs.ErrFileSizeTooLarge, ""},
		{"empty", nil, KindAttachment, 0, errs.ErrInvalidParams, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info, cerr := Inspect(tc.data, tc.kind, tc.maxSize)
			if tc.code != 0 {
				require.NotNil(t, cerr)
				require.Equal(t, tc.code, cerr.Code)
				return
			}
			require.Nil(t, cerr)
			require.Equal(t, tc.typ, info.ContentType)
			require.Equal(t, int64(len(tc.data)), info.Size)
		})
	}
}

func TestObjectKey(t *testing.T) {
	req := require.New(t)

	a, err := ObjectKey("attachments/chat-1", ".PNG")
	req.NoError(err)
	b, err := ObjectKey("attachments/chat-1", ".PNG")
	req.NoError(err)

	req.NotEqual(a, b)
	req.True(strings.HasPrefix(a, "attachments/chat-1/"))
	req.True(strings.HasSuffix(a, ".png"))
	req.Len(strings.Split(a, "/"), 5)
}

func TestDisplayName(t *testing.T) {
	req := require.New(t)

	req.Equal("cat.png", DisplayName("cat.png"))
	req.Equal("cat.png", DisplayName("../../etc/cat.png"))
	req.Equal("cat.png", DisplayName(`C:\photos\cat.png`))
	req.Empty(DisplayName(""))
}

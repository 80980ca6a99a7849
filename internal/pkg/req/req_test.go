package req_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"chatterbox/internal/pkg/errs"
	"chatterbox/internal/pkg/req"
)

type renameInput struct {
	Name string `json:"name" validate:"required,max=10"`
}

func jsonRequest(body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json; charset=utf-8")
	return r
}

func TestBindJSON(t *testing.T) {
	cases := []struct {
		name string
		r    *http.Request
		code int
	}{
		{"valid", jsonRequest(`{"name":"team"}`), 0},
		{"wrong content type", httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"team"}`)), errs.ErrUnsupportedMediaType},
		{"malformed", jsonRequest(`{"name":`), errs.ErrInvalidJSONFormat},
		{"unknown field", jsonRequest(`{"name":"team","admin":true}`), errs.ErrInvalidJSONFormat},
		{"trailing document", jsonRequest(`{"name":"team"}{"name":"x"}`), errs.ErrExtraContentInBody},
		{"failed validation", jsonRequest(`{"name":"a very long team name"}`), errs.ErrInvalidParams},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var in renameInput
			cerr := req.BindJSON(tc.r, &in)
			if tc.code == 0 {
				require.Nil(t, cerr)
				require.Equal(t, "team", in.Name)
				return
			}
			require.NotNil(t, cerr)
			require.Equal(t, tc.code, cerr.Code)
		})
	}
}

func TestReadAllLimited(t *testing.T) {
	r := require.New(t)

	data, cerr := req.ReadAllLimited(strings.NewReader("12345"), 5)
	r.Nil(cerr)
	r.Equal("12345", string(data))

	_, cerr = req.ReadAllLimited(strings.NewReader("123456"), 5)
	r.Equal(errs.ErrFileSizeTooLarge, cerr.Code)
}

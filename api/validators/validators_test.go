package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	pkgerrors "github.com/HuuThai2910/wisdom-books-sub000/pkg/errors"
)

type idsPayload struct {
	IDs []int64 `json:"ids" validate:"required,min=1,unique,dive,gt=0"`
}

func TestDecodeJSONBodyAcceptsValidPayload(t *testing.T) {
	req := httptest.NewRequest(http.MethodDelete, "/", strings.NewReader(`{"ids":[1,2]}`))
	var payload idsPayload
	if err := DecodeJSONBody(req, &payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(payload.IDs) != 2 {
		t.Fatalf("unexpected ids %v", payload.IDs)
	}
}

func TestDecodeJSONBodyRejects(t *testing.T) {
	cases := map[string]string{
		"empty body":     ``,
		"unknown field":  `{"ids":[1],"extra":true}`,
		"malformed":      `{"ids":`,
		"empty list":     `{"ids":[]}`,
		"duplicate ids":  `{"ids":[3,3]}`,
		"non positive":   `{"ids":[0]}`,
		"wrong id types": `{"ids":["a"]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodDelete, "/", strings.NewReader(body))
			var payload idsPayload
			err := DecodeJSONBody(req, &payload)
			if pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestParseIDParam(t *testing.T) {
	withParam := func(value string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("id", value)
		return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}

	id, err := ParseIDParam(withParam("42"), "id")
	if err != nil || id != 42 {
		t.Fatalf("expected 42, got %d (%v)", id, err)
	}
	for _, bad := range []string{"", "abc", "-1", "0"} {
		if _, err := ParseIDParam(withParam(bad), "id"); pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
			t.Fatalf("expected validation error for %q, got %v", bad, err)
		}
	}
}

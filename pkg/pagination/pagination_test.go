package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(query string) Params {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/users/doctors"+query, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		query  string
		limit  int
		offset int
	}{
		{"", DefaultLimit, 0},
		{"?limit=5&offset=10", 5, 10},
		{"?limit=1000", MaxLimit, 0},
		{"?limit=-3&offset=-1", DefaultLimit, 0},
		{"?limit=abc", DefaultLimit, 0},
	}
	for _, tt := range tests {
		p := paramsFor(tt.query)
		if p.Limit != tt.limit || p.Offset != tt.offset {
			t.Errorf("%q: got %+v, want limit=%d offset=%d", tt.query, p, tt.limit, tt.offset)
		}
	}
}

func TestRequested(t *testing.T) {
	e := echo.New()
	for query, want := range map[string]bool{
		"":                false,
		"?limit=5":        true,
		"?offset=0":       true,
		"?sort=name":      false,
		"?limit=&offset=": false,
	} {
		req := httptest.NewRequest(http.MethodGet, "/doctors"+query, nil)
		if got := Requested(e.NewContext(req, httptest.NewRecorder())); got != want {
			t.Errorf("%q: got %v, want %v", query, got, want)
		}
	}
}

func TestNewResponse(t *testing.T) {
	r := NewResponse([]string{"a"}, 25, Params{Limit: 20, Offset: 0})
	if !r.HasMore {
		t.Error("expected more results")
	}
	r = NewResponse([]string{"a"}, 25, Params{Limit: 20, Offset: 20})
	if r.HasMore {
		t.Error("expected last page")
	}
	if r.Total != 25 || r.Limit != 20 || r.Offset != 20 {
		t.Errorf("unexpected envelope %+v", r)
	}
}

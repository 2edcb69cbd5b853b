package cors

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func serve(t *testing.T, origins []string, method, origin string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()

	r := gin.New()
	r.Use(New(origins))
	r.GET("/", func(c *gin.Context) { c.Status(200) })

	req := httptest.NewRequest(method, "/", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	r.ServeHTTP(recorder, req)
	return recorder
}

func TestAllowsListedOrigin(t *testing.T) {
	recorder := serve(t, []string{"https://studyhub.example"}, "GET", "https://studyhub.example")
	if got := recorder.Header().Get("Access-Control-Allow-Origin"); got != "https://studyhub.example" {
		t.Fatalf("unexpected allow-origin: %q", got)
	}
}

func TestRejectsUnknownOrigin(t *testing.T) {
	recorder := serve(t, []string{"https://studyhub.example"}, "GET", "https://evil.example")
	if got := recorder.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unknown origin must not be allowed, got %q", got)
	}
}

func TestPreflightShortCircuits(t *testing.T) {
	recorder := serve(t, nil, "OPTIONS", "https://anywhere.example")
	if recorder.Code != 204 {
		t.Fatalf("expected 204 preflight, got %d", recorder.Code)
	}
	if got := recorder.Header().Get("Access-Control-Expose-Headers"); got == "" {
		t.Fatal("expected exposed headers on preflight")
	}
}

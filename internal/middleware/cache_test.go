package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestResponseMetaCarriesCacheHitAndTiming(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()

	var meta map[string]interface{}
	r := gin.New()
	r.Use(WithResponseMeta())
	r.GET("/", func(c *gin.Context) {
		SetCacheHit(c, true)
		meta = ExtractMeta(c)
		c.Status(200)
	})
	r.ServeHTTP(recorder, httptest.NewRequest("GET", "/", nil))

	if meta == nil {
		t.Fatal("expected meta map")
	}
	if hit, ok := meta[cacheHitKey].(bool); !ok || !hit {
		t.Fatalf("expected cache_hit true, got %v", meta[cacheHitKey])
	}
	if _, ok := meta["processing_time_ms"]; !ok {
		t.Fatal("expected processing_time_ms in meta")
	}
}

func TestExtractMetaWithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	meta := ExtractMeta(c)
	if meta == nil {
		t.Fatal("expected an empty meta map")
	}
	if _, ok := meta["processing_time_ms"]; ok {
		t.Fatal("no start time was stamped, timing should be absent")
	}
}

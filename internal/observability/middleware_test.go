package observability

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/walletlink/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func TestRequestLoggerTagsRequestID(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.ReleaseMode)

	var buf bytes.Buffer
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set("rid", "req-7") })
	r.Use(RequestLogger(zerolog.New(&buf), "rid"))
	r.GET("/v1/pending", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/pending", nil))

	out := buf.String()
	for _, want := range []string{`"request_id":"req-7"`, `"route":"/v1/pending"`, `"status":418`, `"level":"warn"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in %q", want, out)
		}
	}

	buf.Reset()
	r2 := gin.New()
	r2.Use(RequestLogger(zerolog.New(&buf), ""))
	r2.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r2.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	if strings.Contains(buf.String(), "request_id") {
		t.Fatalf("request_id should be omitted without a key: %q", buf.String())
	}
}

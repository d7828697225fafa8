package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newEnvelopeRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/ok", func(c *gin.Context) {
		Success(c, http.StatusOK, gin.H{"pong": true})
	})
	return r
}

func TestRequestIDEchoesInboundHeader(t *testing.T) {
	r := newEnvelopeRouter()

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("X-Request-ID", "caller-supplied")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "caller-supplied" {
		t.Errorf("response header X-Request-ID = %q, want the caller's id", got)
	}

	var body Response
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if body.Metadata.RequestID != "caller-supplied" {
		t.Errorf("metadata request_id = %q, want the caller's id", body.Metadata.RequestID)
	}
}

func TestRequestIDGeneratedWhenAbsent(t *testing.T) {
	r := newEnvelopeRouter()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))

	header := rec.Header().Get("X-Request-ID")
	if header == "" {
		t.Fatal("no X-Request-ID generated")
	}

	var body Response
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if body.Metadata.RequestID != header {
		t.Errorf("metadata request_id = %q, header = %q, want them equal", body.Metadata.RequestID, header)
	}
	if body.Metadata.Timestamp == "" {
		t.Error("metadata timestamp empty")
	}
}

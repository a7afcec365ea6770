package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestInitAndExpose(t *testing.T) {
	Init()
	Init()

	LLMTokens.WithLabelValues("gemini-1.5-flash-002", "ask").Add(42)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `docutalk_llm_tokens_total{model="gemini-1.5-flash-002",operation="ask"}`) {
		t.Error("collector not exposed")
	}
}

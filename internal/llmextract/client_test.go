package llmextract

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tutordex/core/internal/config"
	"github.com/tutordex/core/internal/pipeline"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c := New(config.LLMConfig{
		BaseURL:     srv.URL,
		APIKey:      "test-key",
		Model:       "test-model",
		MaxTokens:   512,
		TimeoutSecs: 5,
	}, config.CircuitConfig{FailureThreshold: 3, TimeoutSeconds: 60})
	return c, srv
}

func chatResponseBody(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	return string(b)
}

func TestExtract_HappyPath(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(chatResponseBody(`{"academic_display_text": "Sec 3 Math", "rate": {}}`)))
	})
	defer srv.Close()

	res, err := c.Extract(context.Background(), "Sec 3 Math tutor needed", "SG Tutors", "corr-1")
	require.NoError(t, err)
	require.Equal(t, "Sec 3 Math", res.Assignment.AcademicDisplayText)
}

func TestExtract_RetriesOn5xxThenSucceeds(t *testing.T) {
	var calls int32
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(chatResponseBody(`{"academic_display_text": "ok", "rate": {}}`)))
	})
	defer srv.Close()

	res, err := c.Extract(context.Background(), "text", "", "corr-2")
	require.NoError(t, err)
	require.Equal(t, "ok", res.Assignment.AcademicDisplayText)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestExtract_BadRequestIsNotRetried(t *testing.T) {
	var calls int32
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "bad request"}`))
	})
	defer srv.Close()

	_, err := c.Extract(context.Background(), "text", "", "corr-3")
	se, ok := pipeline.AsStageError(err)
	require.True(t, ok)
	require.Equal(t, pipeline.CodeLLMBadResponse, se.Code)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestExtract_InvalidJSONIsNotRetried(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(chatResponseBody("not json at all")))
	})
	defer srv.Close()

	_, err := c.Extract(context.Background(), "text", "", "corr-4")
	se, ok := pipeline.AsStageError(err)
	require.True(t, ok)
	require.Equal(t, pipeline.CodeLLMInvalidJSON, se.Code)
}

func TestExtract_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	defer srv.Close()
	c.breaker = NewCircuitBreaker(1, 60)
	c.maxAttempts = 1

	_, err := c.Extract(context.Background(), "text", "", "corr-5")
	require.Error(t, err)
	require.True(t, c.breaker.IsOpen())

	_, err = c.Extract(context.Background(), "text", "", "corr-6")
	se, ok := pipeline.AsStageError(err)
	require.True(t, ok)
	require.Equal(t, pipeline.CodeLLMCircuitOpen, se.Code)
}

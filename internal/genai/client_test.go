// internal/genai/client_test.go
package genai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobhunter-workers/internal/common/config"
	"jobhunter-workers/internal/common/errors"
	"jobhunter-workers/internal/common/logger"
)

func newClientFor(srv *httptest.Server) *Client {
	return NewClient(config.GenAIConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "test-model",
		Timeout: 2 * time.Second,
	}, logger.NewNoOpLogger())
}

func TestCompleteReturnsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Hi Dana, saw the opening."}}]}`))
	}))
	defer srv.Close()

	text, err := newClientFor(srv).Complete(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.Equal(t, "Hi Dana, saw the opening.", text)
}

func TestCompleteServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newClientFor(srv).Complete(context.Background(), "system", "user")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeTransient, errors.CodeOf(err))
}

func TestCompleteEmptyChoicesFailsGeneration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := newClientFor(srv).Complete(context.Background(), "system", "user")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeGenerationFailed, errors.CodeOf(err))
}

func TestCompleteBadRequestFailsGeneration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"model not found"}}`))
	}))
	defer srv.Close()

	_, err := newClientFor(srv).Complete(context.Background(), "system", "user")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeGenerationFailed, errors.CodeOf(err))
}

package extract

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, status int, body string) (*httptest.Server, *chatRequest) {
	t.Helper()
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestOpenAIClient_Complete(t *testing.T) {
	srv, got := newTestServer(t, http.StatusOK, `{"choices":[{"message":{"content":"{\"resumen\":\"ok\"}"}}]}`)

	c, err := NewOpenAIClient(Options{BaseURL: srv.URL, APIKey: "test-key", Model: "test-model"})
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hola"}})
	require.NoError(t, err)
	assert.Equal(t, `{"resumen":"ok"}`, out)
	assert.Equal(t, "test-model", got.Model)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
}

func TestOpenAIClient_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
		target    error
	}{
		{"rate limited", http.StatusTooManyRequests, `{}`, true, ErrRateLimited},
		{"bad gateway", http.StatusBadGateway, `upstream down`, true, nil},
		{"unauthorized", http.StatusUnauthorized, `bad key`, false, ErrInvalidInput},
		{"no choices", http.StatusOK, `{"choices":[]}`, false, ErrResponseInvalid},
		{"garbage", http.StatusOK, `not json`, false, ErrResponseInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, tt.status, tt.body)
			c, err := NewOpenAIClient(Options{BaseURL: srv.URL, APIKey: "test-key"})
			require.NoError(t, err)

			_, err = c.Complete(context.Background(), nil)
			require.Error(t, err)
			assert.Equal(t, tt.retryable, Retryable(err))
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
}

func TestNewOpenAIClient_KeyFromEnv(t *testing.T) {
	t.Setenv("WELL_TEST_KEY", "")
	_, err := NewOpenAIClient(Options{APIKeyEnv: "WELL_TEST_KEY"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	t.Setenv("WELL_TEST_KEY", "from-env")
	c, err := NewOpenAIClient(Options{APIKeyEnv: "WELL_TEST_KEY"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", c.Model())
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", c.url)
}

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIClient_Chat(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "{\"institution_name\": \"Springfield ISD\"}"}}]}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(srv.URL, "test-key", "gpt-4o-mini")
	out, err := client.Chat(context.Background(), []Message{
		{Role: "system", Content: "extract"},
		{Role: "user", Content: "article text"},
	}, &Options{
		Temperature: 0.1,
		Schema:      map[string]any{"type": "object"},
		SchemaName:  "cti_extraction",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"institution_name": "Springfield ISD"}`, out)

	assert.Equal(t, "gpt-4o-mini", captured["model"])
	assert.Equal(t, 0.1, captured["temperature"])
	msgs := captured["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])

	format := captured["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
	schema := format["json_schema"].(map[string]any)
	assert.Equal(t, "cti_extraction", schema["name"])
}

func TestOpenAIClient_NoSchemaOmitsResponseFormat(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "hi"}}]}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(srv.URL, "k", "m")
	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "x"}}, nil)
	require.NoError(t, err)
	_, hasFormat := captured["response_format"]
	assert.False(t, hasFormat)
}

func TestOpenAIClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "Rate limit reached", "type": "rate_limit_error"}}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(srv.URL, "k", "m")
	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "x"}}, nil)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Equal(t, "rate_limit_error", apiErr.Type)
	assert.True(t, IsRateLimit(err))
}

func TestOpenAIClient_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(srv.URL, "k", "m")
	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "x"}}, nil)
	assert.Error(t, err)
}

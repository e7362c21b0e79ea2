package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComplete(t *testing.T) {
	var gotAuth string
	var gotPayload map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))

		w.Write([]byte(`{"choices": [{"message": {"content": "hello there"}}]}`))
	}))
	defer srv.Close()

	provider := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, APIKey: "sk-test", Model: "gpt-3.5-turbo"})
	require.Equal(t, "gpt-3.5-turbo", provider.ModelName())

	reply, err := provider.Complete(context.Background(), "you are helpful", "say hello")
	require.NoError(t, err)
	require.Equal(t, "hello there", reply)

	require.Equal(t, "Bearer sk-test", gotAuth)
	require.Equal(t, "gpt-3.5-turbo", gotPayload["model"])

	messages := gotPayload["messages"].([]any)
	require.Len(t, messages, 2)
	require.Equal(t, "system", messages[0].(map[string]any)["role"])
	require.Equal(t, "say hello", messages[1].(map[string]any)["content"])
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	provider := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, Model: "gpt-3.5-turbo"})
	_, err := provider.Complete(context.Background(), "sys", "user")
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty response")
}

func TestCompleteUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "rate limited"}}`))
	}))
	defer srv.Close()

	provider := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, Model: "gpt-3.5-turbo"})
	_, err := provider.Complete(context.Background(), "sys", "user")
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
}

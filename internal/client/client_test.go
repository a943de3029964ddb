package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSourceRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/sources", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "acme", r.Header.Get("X-Account-ID"))

		var req SourceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text", req.Kind)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(CreateSourceResult{
			Source: Source{Kind: "text", Title: "Notes"},
			Chunks: 3,
		})
	}))
	defer server.Close()

	c := New(server.URL).WithToken("tok").WithAccount("acme")
	result, err := c.CreateSource(context.Background(), SourceRequest{Kind: "text", Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Chunks)
	assert.Equal(t, "Notes", result.Source.Title)
}

func TestErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "tool server name already registered"})
	}))
	defer server.Close()

	c := New(server.URL)
	_, err := c.CreateToolServer(context.Background(), ToolServerRequest{Name: "dup", Transport: "stdio"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestCompleteStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/completions", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, true, req["stream"])

		w.Header().Set("Content-Type", "text/event-stream")
		frame := func(content string, finish any) string {
			payload, _ := json.Marshal(map[string]any{
				"choices": []map[string]any{
					{"delta": map[string]string{"content": content}, "finish_reason": finish},
				},
				"conversation_id": "conv42",
			})
			return fmt.Sprintf("data: %s\n\n", payload)
		}
		fmt.Fprint(w, frame("Hel", nil))
		fmt.Fprint(w, frame("lo", nil))
		fmt.Fprint(w, frame("", "stop"))
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	var got strings.Builder
	c := New(server.URL)
	conversationID, err := c.CompleteStream(context.Background(), "", "hi", "test-model", func(delta string) error {
		got.WriteString(delta)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello", got.String())
	assert.Equal(t, "conv42", conversationID)
}

func TestBaseURLTrimsTrailingSlash(t *testing.T) {
	c := New("http://localhost:9999/")
	assert.Equal(t, "http://localhost:9999", c.baseURL)
}

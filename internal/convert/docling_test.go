package convert

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fkaule/docpilot/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(baseURL string) *Client {
	return NewClient(config.Config{
		DoclingBaseURL:      baseURL,
		ConvertPollInterval: 5 * time.Millisecond,
		ConvertTimeout:      2 * time.Second,
	}, nil)
}

func TestConvertFileRoundTrip(t *testing.T) {
	var polls atomic.Int32
	var submitted convertRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/convert/source/async":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&submitted))
			json.NewEncoder(w).Encode(taskResponse{TaskID: "task-1", TaskStatus: "pending"})

		case r.URL.Path == "/v1/status/poll/task-1":
			status := "pending"
			if polls.Add(1) >= 3 {
				status = "success"
			}
			json.NewEncoder(w).Encode(taskResponse{TaskID: "task-1", TaskStatus: status})

		case r.URL.Path == "/v1/result/task-1":
			var result resultResponse
			result.Document.MDContent = "# Converted\nbody"
			json.NewEncoder(w).Encode(result)

		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := testClient(server.URL)
	md, err := client.ConvertFile(context.Background(), "report.pdf", []byte("pdf bytes"))
	require.NoError(t, err)
	assert.Equal(t, "# Converted\nbody", md)

	// Submit payload shape.
	assert.Equal(t, []string{"md"}, submitted.Options.ToFormats)
	assert.Equal(t, "placeholder", submitted.Options.ImageExportMode)
	assert.Equal(t, "accurate", submitted.Options.TableMode)
	require.Len(t, submitted.Sources, 1)
	assert.Equal(t, "file", submitted.Sources[0].Kind)
	assert.Equal(t, "report.pdf", submitted.Sources[0].Filename)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("pdf bytes")), submitted.Sources[0].Base64String)

	// Backoff polled until success.
	assert.GreaterOrEqual(t, polls.Load(), int32(3))
}

func TestConvertURLSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/convert/source/async":
			var req convertRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Len(t, req.Sources, 1)
			assert.Equal(t, "http", req.Sources[0].Kind)
			assert.Equal(t, "https://example.com/page", req.Sources[0].URL)
			assert.Empty(t, req.Sources[0].Base64String)
			json.NewEncoder(w).Encode(taskResponse{TaskID: "task-2"})

		case r.URL.Path == "/v1/status/poll/task-2":
			json.NewEncoder(w).Encode(taskResponse{TaskStatus: "success"})

		case r.URL.Path == "/v1/result/task-2":
			var result resultResponse
			result.Document.MDContent = "page content"
			json.NewEncoder(w).Encode(result)
		}
	}))
	defer server.Close()

	md, err := testClient(server.URL).ConvertURL(context.Background(), "https://example.com/page")
	require.NoError(t, err)
	assert.Equal(t, "page content", md)
}

func TestConvertTaskFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			json.NewEncoder(w).Encode(taskResponse{TaskID: "task-3"})
		default:
			json.NewEncoder(w).Encode(taskResponse{TaskStatus: "failure"})
		}
	}))
	defer server.Close()

	_, err := testClient(server.URL).ConvertFile(context.Background(), "bad.pdf", []byte("x"))
	assert.ErrorIs(t, err, ErrConversionFailed)
}

func TestConvertDisabled(t *testing.T) {
	client := testClient("")

	assert.False(t, client.Enabled())

	_, err := client.ConvertFile(context.Background(), "a.pdf", []byte("x"))
	assert.ErrorIs(t, err, ErrDisabled)

	_, err = client.ConvertURL(context.Background(), "https://example.com")
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestConvertSubmitErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := testClient(server.URL).ConvertURL(context.Background(), "https://example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

package toolgw

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"

	"github.com/fkaule/docpilot/internal/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// headerRoundTripper injects auth and custom headers into every request.
type headerRoundTripper struct {
	base    http.RoundTripper
	headers map[string]string
}

func (h headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	for k, v := range h.headers {
		clone.Header.Set(k, v)
	}
	return h.base.RoundTrip(clone)
}

// httpClientFor builds an HTTP client carrying the server's headers plus
// bearer token and API key auth.
func httpClientFor(server *models.ToolServer) *http.Client {
	headers := make(map[string]string, len(server.Headers)+2)
	for k, v := range server.Headers {
		headers[k] = v
	}
	if server.Token != "" {
		headers["Authorization"] = "Bearer " + server.Token
	}
	if server.APIKey != "" {
		headers["X-API-Key"] = server.APIKey
	}

	if len(headers) == 0 {
		return http.DefaultClient
	}
	return &http.Client{Transport: headerRoundTripper{base: http.DefaultTransport, headers: headers}}
}

// defaultDial opens an MCP client session over the server's transport.
func defaultDial(ctx context.Context, server *models.ToolServer) (session, error) {
	client := mcp.NewClient(&mcp.Implementation{
		Name:    "docpilot",
		Version: "0.1.0",
	}, nil)

	var transport mcp.Transport
	switch server.Transport {
	case models.TransportStdio:
		if server.Command == "" {
			return nil, fmt.Errorf("stdio transport requires a command")
		}
		cmd := exec.Command(server.Command, server.Args...)
		cmd.Env = os.Environ()
		for k, v := range server.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcp.CommandTransport{Command: cmd}

	case models.TransportStreamable:
		if server.Endpoint == "" {
			return nil, fmt.Errorf("streamable transport requires an endpoint")
		}
		transport = &mcp.StreamableClientTransport{
			Endpoint:   server.Endpoint,
			HTTPClient: httpClientFor(server),
		}

	case models.TransportSSE:
		if server.Endpoint == "" {
			return nil, fmt.Errorf("sse transport requires an endpoint")
		}
		transport = &mcp.SSEClientTransport{
			Endpoint:   server.Endpoint,
			HTTPClient: httpClientFor(server),
		}

	default:
		return nil, fmt.Errorf("unsupported transport: %s", server.Transport)
	}

	return client.Connect(ctx, transport, nil)
}

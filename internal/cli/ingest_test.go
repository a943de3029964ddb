package cli

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSourceRequestMarkdown(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("# Notes\n\nhello"), 0o644))

	req, err := fileSourceRequest(path)
	require.NoError(t, err)
	assert.Equal(t, "text", req.Kind)
	assert.Equal(t, "notes", req.Title)
	assert.Equal(t, "# Notes\n\nhello", req.Content)
	assert.Empty(t, req.FileBase64)
}

func TestFileSourceRequestBinary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))

	req, err := fileSourceRequest(path)
	require.NoError(t, err)
	assert.Equal(t, "document", req.Kind)
	assert.Equal(t, "report.pdf", req.FileName)

	decoded, err := base64.StdEncoding.DecodeString(req.FileBase64)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), decoded)
}

func TestCollectIngestRequestsDirectoryNeedsRecursive(t *testing.T) {
	dir := t.TempDir()
	ingestRecursive = false

	_, err := collectIngestRequests([]string{dir}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--recursive")
}

func TestCollectIngestRequestsRecursiveFiltersExtensions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.exe"), []byte("x"), 0o644))

	ingestRecursive = true
	defer func() { ingestRecursive = false }()

	requests, err := collectIngestRequests([]string{dir}, []string{"https://example.com"})
	require.NoError(t, err)
	require.Len(t, requests, 2)
	assert.Equal(t, "text", requests[0].Kind)
	assert.Equal(t, "website", requests[1].Kind)
	assert.Equal(t, "https://example.com", requests[1].URL)
}

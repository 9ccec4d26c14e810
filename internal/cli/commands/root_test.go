package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/jsonapi-store/internal/cli/config"
	"github.com/conduit-lang/jsonapi-store/internal/testserver"
	"github.com/conduit-lang/jsonapi-store/pkg/jsonapi"
)

// run executes the CLI in an empty working directory against baseURL
func run(t *testing.T, baseURL string, args ...string) (string, error) {
	t.Helper()

	color.NoColor = true
	t.Cleanup(func() { color.NoColor = false })

	oldWd, _ := os.Getwd()
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(oldWd) })
	t.Setenv("HOME", t.TempDir())

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	if baseURL != "" {
		args = append(args, "--base-url", baseURL)
	}
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func startServer(t *testing.T) (*testserver.Server, string) {
	t.Helper()

	server := testserver.New()
	server.Seed(
		&jsonapi.Resource{ID: "o1", Type: "offices", Attributes: map[string]any{"title": "HQ"}},
		&jsonapi.Resource{
			ID:         "1",
			Type:       "users",
			Attributes: map[string]any{"name": "Ann", "email": "ann@test.com"},
			Relationships: map[string]*jsonapi.Relationship{
				"office": {Data: jsonapi.Single(&jsonapi.Resource{ID: "o1", Type: "offices"})},
			},
		},
		&jsonapi.Resource{ID: "2", Type: "users", Attributes: map[string]any{"name": "Bob"}},
	)

	httpServer := httptest.NewServer(server)
	t.Cleanup(httpServer.Close)
	return server, httpServer.URL
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()

	if cmd.Use != "jsonapi" {
		t.Errorf("expected Use to be 'jsonapi', got %s", cmd.Use)
	}

	if cmd.Short == "" {
		t.Error("expected Short description to be set")
	}

	expectedCommands := []string{"version", "get", "list", "delete", "completion"}
	for _, expected := range expectedCommands {
		found := false
		for _, sub := range cmd.Commands() {
			if sub.Name() == expected {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected command %s to be registered", expected)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	Version = "1.0.0-test"
	GitCommit = "abc123"
	defer func() { Version, GitCommit = "dev", "unknown" }()

	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "jsonapi version: 1.0.0-test")
	assert.Contains(t, out, "Git commit: abc123")
}

func TestCompletionCommand(t *testing.T) {
	out, err := run(t, "", "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "jsonapi")

	_, err = run(t, "", "completion", "tcsh")
	assert.Error(t, err)
}

func TestListCommand(t *testing.T) {
	_, baseURL := startServer(t)

	out, err := run(t, baseURL, "list", "users", "--sort", "-name")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "ID  EMAIL         NAME", lines[0])
	assert.True(t, strings.HasPrefix(lines[2], "2   -"), lines[2])
	assert.True(t, strings.HasPrefix(lines[3], "1   ann@test.com"), lines[3])
	assert.Equal(t, "2 users (total 2)", lines[4])
}

func TestListCommand_Query(t *testing.T) {
	server, baseURL := startServer(t)

	_, err := run(t, baseURL, "list", "users",
		"--filter", "name=Ann",
		"--fields", "users=name",
		"--include", "office",
		"--page-size", "5")
	require.NoError(t, err)

	requests := server.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, "/users", requests[0].Path)
	assert.Equal(t, "fields%5Busers%5D=name&filter%5Bname%5D=Ann&include=office&page%5Bsize%5D=5", requests[0].Query)
}

func TestListCommand_Raw(t *testing.T) {
	_, baseURL := startServer(t)

	out, err := run(t, baseURL, "list", "offices", "--raw")
	require.NoError(t, err)

	var doc jsonapi.Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.Len(t, doc.Data.Resources(), 1)
	assert.Equal(t, "HQ", doc.Data.Resources()[0].Attributes["title"])
}

func TestGetCommand(t *testing.T) {
	server, baseURL := startServer(t)

	out, err := run(t, baseURL, "get", "users", "1", "2")
	require.NoError(t, err)

	first := strings.Index(out, "users 1")
	second := strings.Index(out, "users 2")
	require.True(t, first >= 0 && second > first, out)
	assert.Contains(t, out, "name:   Ann")
	assert.Contains(t, out, "office: offices:o1")
	assert.Len(t, server.Requests(), 2)
}

func TestGetCommand_NotFound(t *testing.T) {
	_, baseURL := startServer(t)

	_, err := run(t, baseURL, "get", "users", "1", "404")

	var de *documentError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, `fetch users "404"`, de.action)
	assert.Equal(t, "404", de.errs[0].Status)

	var buf bytes.Buffer
	assert.True(t, writeError(&buf, err))
	assert.Contains(t, buf.String(), "✗ 404 Not Found")
}

func TestDeleteCommand(t *testing.T) {
	server, baseURL := startServer(t)

	out, err := run(t, baseURL, "delete", "users", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ deleted 1 users")
	assert.Equal(t, 1, server.Count("users"))

	req := server.Requests()[0]
	assert.Equal(t, http.MethodDelete, req.Method)
	assert.Equal(t, "/users/1", req.Path)
}

func TestDeleteCommand_Batch(t *testing.T) {
	server, baseURL := startServer(t)

	_, err := run(t, baseURL, "delete", "users", "1", "2")
	require.NoError(t, err)
	assert.Equal(t, 0, server.Count("users"))

	requests := server.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, "/users", requests[0].Path)
	assert.JSONEq(t, `{"data":[{"type":"users","id":"1"},{"type":"users","id":"2"}]}`, string(requests[0].Body))
}

func TestDeleteCommand_ServerError(t *testing.T) {
	server, baseURL := startServer(t)
	server.FailNext(http.StatusForbidden, jsonapi.NewError(http.StatusForbidden, "Forbidden"))

	_, err := run(t, baseURL, "delete", "users", "1")

	var de *documentError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "403", de.errs[0].Status)
	assert.Equal(t, 2, server.Count("users"))
}

func TestNetworkCommands_RequireBaseURL(t *testing.T) {
	_, err := run(t, "", "list", "users")
	assert.ErrorIs(t, err, config.ErrMissingBaseURL)
}

func TestNetworkCommands_InvalidHeader(t *testing.T) {
	_, baseURL := startServer(t)

	_, err := run(t, baseURL, "list", "users", "-H", "no-colon")
	assert.ErrorContains(t, err, "invalid header")
}

func TestNetworkCommands_Header(t *testing.T) {
	server, baseURL := startServer(t)

	_, err := run(t, baseURL, "list", "users", "-H", "Authorization: Bearer xyz")
	require.NoError(t, err)
	assert.Equal(t, "Bearer xyz", server.Requests()[0].Header.Get("Authorization"))
}

package docs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGitHubServer(t *testing.T, files map[string]string) (*httptest.Server, *[]string) {
	t.Helper()
	var (
		mu   sync.Mutex
		refs []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "/repos/SirRender00/nomic/contents/"
		if !strings.HasPrefix(r.URL.Path, prefix) {
			http.NotFound(w, r)
			return
		}
		mu.Lock()
		refs = append(refs, r.URL.Query().Get("ref"))
		mu.Unlock()
		path := strings.TrimPrefix(r.URL.Path, prefix)
		body, ok := files[path]
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"Not Found"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"type":     "file",
			"name":     path,
			"path":     path,
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString([]byte(body)),
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &refs
}

func newTestFetcher(t *testing.T, srv *httptest.Server, ref string) *GitHubFetcher {
	t.Helper()
	f := NewGitHubFetcher(srv.Client(), "gh-token", "SirRender00", "nomic", ref)
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	f.client.BaseURL = base
	return f
}

func TestGitHubFetcher_DecodesContent(t *testing.T) {
	srv, refs := newGitHubServer(t, map[string]string{"rules.md": "# Rules\n\n101. All players must obey the rules."})
	f := newTestFetcher(t, srv, "main")

	text, err := f.Fetch(context.Background(), "rules.md")
	require.NoError(t, err)
	assert.Equal(t, "# Rules\n\n101. All players must obey the rules.", text)
	assert.Equal(t, []string{"main"}, *refs)
}

func TestGitHubFetcher_NotFound(t *testing.T) {
	srv, _ := newGitHubServer(t, nil)
	f := newTestFetcher(t, srv, "")

	_, err := f.Fetch(context.Background(), "rules.md")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rules.md")
}

func TestLoader_LoadsAllDocuments(t *testing.T) {
	srv, _ := newGitHubServer(t, map[string]string{
		"rules.md":   "rules text",
		"agendas.md": "agendas text",
		"players.md": "players text",
	})
	loader := NewLoader(newTestFetcher(t, srv, ""), DefaultPaths(), 5*time.Second, zerolog.Nop())

	b, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Bundle{Rules: "rules text", Agendas: "agendas text", Players: "players text"}, b)
}

func TestLoader_FailureNamesDocument(t *testing.T) {
	srv, _ := newGitHubServer(t, map[string]string{
		"rules.md":   "rules text",
		"agendas.md": "agendas text",
	})
	loader := NewLoader(newTestFetcher(t, srv, ""), DefaultPaths(), 5*time.Second, zerolog.Nop())

	_, err := loader.Load(context.Background())
	require.Error(t, err)
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, Players, fetchErr.Document)
	assert.Equal(t, "failed to fetch players from GitHub", err.Error())
	assert.NotNil(t, errors.Unwrap(err))
}

type blockingFetcher struct{}

func (blockingFetcher) Fetch(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestLoader_Timeout(t *testing.T) {
	loader := NewLoader(blockingFetcher{}, DefaultPaths(), 20*time.Millisecond, zerolog.Nop())

	_, err := loader.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	var fetchErr *FetchError
	assert.ErrorAs(t, err, &fetchErr)
}

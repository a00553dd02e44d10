package docs

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/go-github/v66/github"
)

// GitHubFetcher reads files through the GitHub repository contents API.
type GitHubFetcher struct {
	client *github.Client
	owner  string
	repo   string
	ref    string
}

// NewGitHubFetcher creates a fetcher for owner/repo. token may be empty for
// anonymous access; ref may be empty for the default branch.
func NewGitHubFetcher(httpClient *http.Client, token, owner, repo, ref string) *GitHubFetcher {
	client := github.NewClient(httpClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return &GitHubFetcher{client: client, owner: owner, repo: repo, ref: ref}
}

// Fetch returns the decoded content of the file at path.
func (f *GitHubFetcher) Fetch(ctx context.Context, path string) (string, error) {
	var opts *github.RepositoryContentGetOptions
	if f.ref != "" {
		opts = &github.RepositoryContentGetOptions{Ref: f.ref}
	}
	file, _, _, err := f.client.Repositories.GetContents(ctx, f.owner, f.repo, path, opts)
	if err != nil {
		return "", fmt.Errorf("get contents %s/%s/%s: %w", f.owner, f.repo, path, err)
	}
	if file == nil {
		return "", fmt.Errorf("get contents %s/%s/%s: not a file", f.owner, f.repo, path)
	}
	content, err := file.GetContent()
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", path, err)
	}
	if content == "" {
		return "", fmt.Errorf("get contents %s/%s/%s: empty content", f.owner, f.repo, path)
	}
	return content, nil
}

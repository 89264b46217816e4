package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/ternarybob/rogo/internal/common"
	"github.com/ternarybob/rogo/internal/models"
)

// parseGitHubRepo reports whether the URL points at a GitHub repository root
// (github.com/{owner}/{repo}). Deeper paths such as blob or issue URLs are
// fetched as regular web pages.
func parseGitHubRepo(target *url.URL) (owner, repo string, ok bool) {
	host := strings.ToLower(target.Hostname())
	if host != "github.com" && host != "www.github.com" {
		return "", "", false
	}

	parts := strings.Split(strings.Trim(target.Path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}

	return parts[0], strings.TrimSuffix(parts[1], ".git"), true
}

// fetchGitHubReadme loads a repository README through the GitHub API. The
// README markdown doubles as the page text; chunking works well on it as-is.
func (s *Service) fetchGitHubReadme(ctx context.Context, target *url.URL, owner, repo string) (*models.Page, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.config.Fetcher.FetchTimeout())
	defer cancel()

	client := s.newGitHubClient(fetchCtx)

	readme, _, err := client.Repositories.GetReadme(fetchCtx, owner, repo, nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &models.TimeoutError{Op: "fetch", Err: err}
		}
		return nil, fmt.Errorf("failed to fetch README for %s/%s: %w", owner, repo, err)
	}

	content, err := readme.GetContent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode README for %s/%s: %w", owner, repo, err)
	}

	page := &models.Page{
		URL:           target.String(),
		Title:         fmt.Sprintf("%s/%s", owner, repo),
		Text:          content,
		Markdown:      content,
		ContentLength: utf8.RuneCountInString(content),
		StatusCode:    http.StatusOK,
		ContentType:   "text/markdown",
		FetchedAt:     time.Now(),
	}

	// Repository description and topics enrich the page metadata when the
	// extra call succeeds; the README alone is enough to proceed.
	if repoInfo, _, err := client.Repositories.Get(fetchCtx, owner, repo); err == nil {
		page.Description = repoInfo.GetDescription()
		if len(repoInfo.Topics) > 0 {
			page.Keywords = strings.Join(repoInfo.Topics, ", ")
		}
	} else {
		s.logger.Debug().Err(err).Str("repo", owner+"/"+repo).Msg("Could not fetch repository metadata")
	}

	s.logger.Info().
		Str("repo", owner+"/"+repo).
		Int("content_length", page.ContentLength).
		Msg("Fetched GitHub README")

	return page, nil
}

// newGitHubClient builds an API client, authenticated when a token is
// resolvable from environment, KV store, or config. Anonymous access works
// for public repositories at a lower rate limit.
func (s *Service) newGitHubClient(ctx context.Context) *github.Client {
	token, err := common.ResolveAPIKey(ctx, s.kv, "github_token", s.config.Fetcher.GitHubToken)
	if err != nil || token == "" {
		return github.NewClient(nil)
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return github.NewClient(oauth2.NewClient(ctx, ts))
}

package commits

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/suykerbuyk/evolve/internal/config"
)

const (
	perPage = 100
	// Commit search never returns more than 1000 results per query.
	maxPages = 10
	// Each window is one query narrowed by author-date.
	maxWindows = 100
)

// GitHub searches commits through the GitHub REST search API.
type GitHub struct {
	baseURL string
	author  string
	repo    string
	token   string
	client  *http.Client
	limiter *rate.Limiter
}

// NewGitHub builds a client from config. The token is read from the
// configured environment variable; an empty token makes unauthenticated
// requests, which GitHub rate limits heavily.
func NewGitHub(cfg config.SourceConfig) (*GitHub, error) {
	if strings.TrimSpace(cfg.Author) == "" {
		return nil, fmt.Errorf("source author is not configured")
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.github.com"
	}
	return &GitHub{
		baseURL: strings.TrimRight(base, "/"),
		author:  cfg.Author,
		repo:    cfg.Repo,
		token:   os.Getenv(cfg.TokenEnv),
		client:  &http.Client{Timeout: config.Timeout(cfg.TimeoutSeconds, 20*time.Second)},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 5),
	}, nil
}

// Query returns the search qualifier string.
func (g *GitHub) Query() string {
	q := "author:" + g.author
	if g.repo != "" {
		q += " repo:" + g.repo
	}
	return q
}

// Fetch returns every commit by the author, oldest first. Search caps a
// query at 1000 results, so once a query is truncated the next one is
// narrowed to author-date >= the newest date seen and the pages continue
// from there.
func (g *GitHub) Fetch(ctx context.Context) ([]Commit, error) {
	var all []Commit
	seen := make(map[string]bool)
	var since time.Time
	for w := 0; w < maxWindows; w++ {
		batch, total, err := g.fetchWindow(ctx, since)
		if err != nil {
			return nil, err
		}
		added := 0
		for _, c := range batch {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			all = append(all, c)
			added++
		}
		if total <= len(batch) || len(batch) < maxPages*perPage {
			return all, nil
		}
		if added == 0 {
			return nil, fmt.Errorf("commit search: more than %d commits share author date %s", len(batch), since.Format(time.RFC3339))
		}
		since = batch[len(batch)-1].Date
	}
	return nil, fmt.Errorf("commit search: more than %d result windows for %s", maxWindows, g.Query())
}

// fetchWindow pages through one query. It returns the commits in search
// order and the total the API reported for the query.
func (g *GitHub) fetchWindow(ctx context.Context, since time.Time) ([]Commit, int, error) {
	q := g.Query()
	if !since.IsZero() {
		q += " author-date:>=" + since.UTC().Format(time.RFC3339)
	}
	var batch []Commit
	total := 0
	for page := 1; page <= maxPages; page++ {
		res, err := g.fetchPage(ctx, q, page)
		if err != nil {
			return nil, 0, err
		}
		total = res.TotalCount
		for _, it := range res.Items {
			batch = append(batch, Commit{
				ID:      it.SHA,
				Message: it.Commit.Message,
				Date:    it.Commit.Author.Date,
			})
		}
		if len(res.Items) < perPage || page*perPage >= res.TotalCount {
			break
		}
	}
	return batch, total, nil
}

type searchResponse struct {
	TotalCount int          `json:"total_count"`
	Items      []searchItem `json:"items"`
}

type searchItem struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message string `json:"message"`
		Author  struct {
			Date time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

type apiError struct {
	Message string `json:"message"`
}

func (g *GitHub) fetchPage(ctx context.Context, q string, page int) (*searchResponse, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	v := url.Values{}
	v.Set("q", q)
	v.Set("sort", "author-date")
	v.Set("order", "asc")
	v.Set("per_page", strconv.Itoa(perPage))
	v.Set("page", strconv.Itoa(page))
	u := g.baseURL + "/search/commits?" + v.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var ae apiError
		if json.Unmarshal(body, &ae) == nil && ae.Message != "" {
			return nil, fmt.Errorf("commit search (status %d): %s", resp.StatusCode, ae.Message)
		}
		return nil, fmt.Errorf("commit search (status %d)", resp.StatusCode)
	}

	var res searchResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("unmarshal search response: %w", err)
	}
	return &res, nil
}

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const (
	searchCacheTTL   = 5 * time.Minute
	maxSearchResults = 5
	noResultsText    = "No results found for your query."
)

// SearchBalancer manages round-robin load balancing across multiple SearXNG instances
type SearchBalancer struct {
	urls    []string
	counter uint64
}

// NewSearchBalancer creates a balancer over the given instance URLs
func NewSearchBalancer(urls []string) *SearchBalancer {
	sb := &SearchBalancer{}
	for _, u := range urls {
		if trimmed := strings.TrimSuffix(strings.TrimSpace(u), "/"); trimmed != "" {
			sb.urls = append(sb.urls, trimmed)
		}
	}
	if len(sb.urls) == 0 {
		sb.urls = []string{"http://localhost:8080"}
	}
	log.Printf("🔍 [SEARCH] Initialized round-robin balancer with %d SearXNG instance(s): %v", len(sb.urls), sb.urls)
	return sb
}

// next returns the starting index for a request
func (sb *SearchBalancer) next() uint64 {
	return atomic.AddUint64(&sb.counter, 1) - 1
}

// urlAt returns the instance offset positions after start
func (sb *SearchBalancer) urlAt(start uint64, offset int) string {
	return sb.urls[(start+uint64(offset))%uint64(len(sb.urls))]
}

// SearchLimiter applies a global and a per-user rate limit to searches
type SearchLimiter struct {
	global  *rate.Limiter
	perUser sync.Map // userID -> *rate.Limiter
	userRPS float64
}

// NewSearchLimiter creates a limiter allowing globalRPS overall and userRPS per user
func NewSearchLimiter(globalRPS, userRPS float64) *SearchLimiter {
	return &SearchLimiter{
		global:  rate.NewLimiter(rate.Limit(globalRPS), int(globalRPS*2)+1),
		userRPS: userRPS,
	}
}

// Wait blocks until both tiers allow the request or ctx ends
func (l *SearchLimiter) Wait(ctx context.Context, userID string) error {
	if err := l.global.Wait(ctx); err != nil {
		return err
	}
	limiter, _ := l.perUser.LoadOrStore(userID, rate.NewLimiter(rate.Limit(l.userRPS), 2))
	return limiter.(*rate.Limiter).Wait(ctx)
}

// WebSearch queries SearXNG instances with caching and rate limiting
type WebSearch struct {
	balancer   *SearchBalancer
	limiter    *SearchLimiter
	cache      *cache.Cache
	httpClient *http.Client
}

// NewWebSearch creates a web search client
func NewWebSearch(urls []string) *WebSearch {
	return &WebSearch{
		balancer:   NewSearchBalancer(urls),
		limiter:    NewSearchLimiter(5, 1),
		cache:      cache.New(searchCacheTTL, 10*time.Minute),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// NewSearchTool creates the web_search tool
func NewSearchTool(search *WebSearch) *Tool {
	return &Tool{
		Name:        "web_search",
		DisplayName: "Search Web",
		Description: "Search the web for current information, news, prices, weather or any topic that needs up-to-date external data",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "The search query to look up on the web",
				},
			},
			"required": []string{"query"},
		},
		Execute:  search.execute,
		Category: "data_sources",
		Keywords: []string{"search", "find", "lookup", "web", "internet", "news", "weather", "price"},
	}
}

func (s *WebSearch) execute(ctx context.Context, args map[string]interface{}) (string, error) {
	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("query parameter is required and must be a string")
	}
	query = strings.TrimSpace(query)
	return s.Search(ctx, userIDFromArgs(args), query)
}

// Search runs a query, serving repeated queries from a 5 minute cache
func (s *WebSearch) Search(ctx context.Context, userID, query string) (string, error) {
	log.Printf("🔍 [SEARCH-WEB] Starting search for: '%s'", query)

	cacheKey := strings.ToLower(query)
	if cached, found := s.cache.Get(cacheKey); found {
		log.Printf("✅ [SEARCH-WEB] Cache hit for: '%s'", query)
		return cached.(string), nil
	}

	if err := s.limiter.Wait(ctx, userID); err != nil {
		return "", fmt.Errorf("search rate limit: %w", err)
	}

	result, err := s.searchWithBalancer(ctx, query)
	if err != nil {
		log.Printf("❌ [SEARCH-WEB] Search failed: %v", err)
		return "", err
	}

	if result != noResultsText {
		s.cache.Set(cacheKey, result, cache.DefaultExpiration)
	}
	return result, nil
}

// searchWithBalancer tries each instance once, starting at the round-robin position
func (s *WebSearch) searchWithBalancer(ctx context.Context, query string) (string, error) {
	start := s.balancer.next()
	count := len(s.balancer.urls)

	var lastErr error
	for attempt := 0; attempt < count; attempt++ {
		searxngURL := s.balancer.urlAt(start, attempt)
		result, err := s.performSearch(ctx, searxngURL, query)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		log.Printf("⚠️ [SEARCH] Instance %s failed: %v", searxngURL, err)
		lastErr = err
	}

	return "", fmt.Errorf("all %d SearXNG instances failed, last error: %w", count, lastErr)
}

type searxngResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func (s *WebSearch) performSearch(ctx context.Context, searxngURL, query string) (string, error) {
	searchURL := fmt.Sprintf("%s/search?q=%s&format=json&safesearch=1", searxngURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "aitwin/1.0 (Bot)")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search failed with status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read search response: %w", err)
	}

	var parsed searxngResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse search results: %w", err)
	}

	if len(parsed.Results) == 0 {
		return noResultsText, nil
	}

	n := len(parsed.Results)
	if n > maxSearchResults {
		n = maxSearchResults
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d results for '%s':\n\n", len(parsed.Results), query)
	for i := 0; i < n; i++ {
		res := parsed.Results[i]
		fmt.Fprintf(&sb, "[%d] %s\n    URL: %s\n    %s\n\n", i+1, res.Title, res.URL, res.Content)
	}

	log.Printf("✅ [SEARCH-WEB] Found %d results for '%s'", len(parsed.Results), query)
	return strings.TrimRight(sb.String(), "\n"), nil
}

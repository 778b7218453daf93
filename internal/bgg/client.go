package bgg

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ryanm101/spielpendium/internal/apperr"
	"github.com/ryanm101/spielpendium/internal/logging"
	"github.com/ryanm101/spielpendium/internal/metrics"
)

// DefaultBaseURL is the catalog XML API root.
const DefaultBaseURL = "https://www.boardgamegeek.com/xmlapi/"

// CollectionFilters lists the filter names the collection endpoint accepts.
var CollectionFilters = []string{
	"own", "rated", "played", "comment", "trade", "want", "wantintrade",
	"wishlist", "wanttoplay", "wanttobuy", "prevowned", "preordered",
	"hasparts", "wantparts", "notifycontent", "notifysale", "notifyauction",
	"wishlistpriority", "minrating", "maxrating", "minbggrating",
	"maxbggrating", "minplays", "maxplays", "showprivate",
}

// Filters narrows a collection request. Boolean filters use 0 or 1.
type Filters map[string]int

// Validate rejects filter names the catalog does not know.
func (f Filters) Validate() error {
	var unknown []string
	for k := range f {
		if !slices.Contains(CollectionFilters, k) {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return apperr.Invalid("collection filters", "", errors.New("unknown filter"), unknown...)
	}
	return nil
}

func (f Filters) query() string {
	if len(f) == 0 {
		return ""
	}
	v := url.Values{}
	for k, n := range f {
		v.Set(k, strconv.Itoa(n))
	}
	return v.Encode()
}

// Cache stores raw catalog responses.
type Cache interface {
	GetCached(ctx context.Context, key string, maxAge time.Duration) ([]byte, bool, error)
	PutCached(ctx context.Context, key string, body []byte) error
}

// Client requests documents from the catalog.
type Client struct {
	baseURL string
	fetcher Fetcher
	retry   RetryPolicy
	cache   Cache
	maxAge  time.Duration
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API root.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base = strings.TrimSpace(base); base != "" {
			c.baseURL = strings.TrimRight(base, "/") + "/"
		}
	}
}

// WithFetcher sets the network collaborator.
func WithFetcher(f Fetcher) Option {
	return func(c *Client) {
		if f != nil {
			c.fetcher = f
		}
	}
}

// WithRetryPolicy sets the generating-response retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithCache enables response caching for documents younger than maxAge.
func WithCache(cache Cache, maxAge time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		c.maxAge = maxAge
	}
}

// WithClientLogger sets the client logger.
func WithClientLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a catalog client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		retry:   DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.fetcher == nil {
		c.fetcher = NewHTTPFetcher(30 * time.Second)
	}
	c.logger = logging.Component(c.logger, "catalog")
	return c
}

// Collection fetches a user's collection document.
func (c *Client) Collection(ctx context.Context, user string, filters Filters, force bool) (Document, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return nil, apperr.Invalid("collection", "", errors.New("user name required"))
	}
	if err := filters.Validate(); err != nil {
		return nil, err
	}
	u := c.baseURL + "collection/" + url.PathEscape(user)
	if q := filters.query(); q != "" {
		u += "?" + q
	}
	return c.document(ctx, u, force)
}

// Items fetches detail documents for ids, optionally with statistics.
func (c *Client) Items(ctx context.Context, ids []string, stats, force bool) (Document, error) {
	if len(ids) == 0 {
		return nil, apperr.Invalid("items", "", errors.New("no identifiers"))
	}
	u := c.baseURL + "boardgame/" + strings.Join(ids, ",")
	if stats {
		u += "?stats=1"
	}
	return c.document(ctx, u, force)
}

// Search queries the catalog by title.
func (c *Client) Search(ctx context.Context, query string, exact bool) (Document, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Invalid("search", "", errors.New("query must not be empty"))
	}
	exactFlag := "0"
	if exact {
		exactFlag = "1"
	}
	u := c.baseURL + "search?search=" + url.QueryEscape(query) + "&exact=" + exactFlag
	return c.document(ctx, u, false)
}

// Image fetches raw image bytes. Images are not cached.
func (c *Client) Image(ctx context.Context, imageURL string) ([]byte, error) {
	imageURL = absoluteURL(imageURL)
	if imageURL == "" {
		return nil, apperr.Invalid("image", "", errors.New("empty image url"))
	}
	return c.fetcher.Fetch(ctx, imageURL)
}

// document fetches and parses u, retrying while the catalog reports that it
// is still generating the response.
func (c *Client) document(ctx context.Context, u string, force bool) (Document, error) {
	if doc, ok := c.cached(ctx, u, force); ok {
		metrics.CatalogRequests.WithLabelValues("cached").Inc()
		return doc, nil
	}

	attempts := c.retry.attempts()
	for attempt := 1; attempt <= attempts; attempt++ {
		body, err := c.fetcher.Fetch(ctx, u)
		switch {
		case errors.Is(err, errGenerating):
		case err != nil:
			c.logger.Warn("catalog request failed", "url", u, "attempt", attempt, "error", err)
			metrics.CatalogRequests.WithLabelValues(apperr.Kind(err)).Inc()
			return nil, withAttempts(err, attempt)
		default:
			doc, perr := ParseXML(body)
			if perr != nil {
				metrics.CatalogRequests.WithLabelValues("transient_network").Inc()
				return nil, &apperr.FetchError{URL: u, Attempts: attempt, Kind: apperr.ErrTransientNetwork, Err: perr}
			}
			if root, _ := doc.Root(); root != "message" {
				metrics.CatalogRequests.WithLabelValues("ok").Inc()
				c.store(ctx, u, body)
				return doc, nil
			}
		}

		metrics.CatalogRequests.WithLabelValues("generating").Inc()
		if attempt == attempts {
			break
		}
		if attempt == 1 {
			c.logger.Info("waiting for catalog to generate response", "url", u)
		} else {
			c.logger.Debug("still waiting for catalog", "url", u, "attempt", attempt)
		}
		if err := c.retry.sleep(ctx); err != nil {
			return nil, err
		}
	}

	metrics.CatalogRequests.WithLabelValues("timeout").Inc()
	c.logger.Warn("catalog did not produce a response", "url", u, "attempts", attempts)
	return nil, &apperr.FetchError{URL: u, Attempts: attempts, Kind: apperr.ErrTimeout, Err: errGenerating}
}

func (c *Client) cached(ctx context.Context, key string, force bool) (Document, bool) {
	if c.cache == nil || force {
		return nil, false
	}
	body, ok, err := c.cache.GetCached(ctx, key, c.maxAge)
	if err != nil {
		c.logger.Warn("cache lookup failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	doc, err := ParseXML(body)
	if err != nil {
		c.logger.Warn("discarding unreadable cache entry", "key", key, "error", err)
		return nil, false
	}
	c.logger.Debug("using cached response", "key", key)
	return doc, true
}

func (c *Client) store(ctx context.Context, key string, body []byte) {
	if c.cache == nil {
		return
	}
	if err := c.cache.PutCached(ctx, key, body); err != nil {
		c.logger.Warn("cache store failed", "key", key, "error", err)
	}
}

func withAttempts(err error, attempt int) error {
	var fe *apperr.FetchError
	if errors.As(err, &fe) {
		fe.Attempts = attempt
	}
	return err
}


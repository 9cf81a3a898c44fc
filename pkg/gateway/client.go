// Package gateway is the single path from chmcp to the Companies House public
// data API.
//
// Every operation checks the response cache first, then spends one token from
// the shared rate budget, issues the request and classifies any failure into an
// *Error. Only successful responses are cached, and nothing is retried: a
// classified error is final for that call.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chmcp/companies-house-mcp/pkg/budget"
	"github.com/chmcp/companies-house-mcp/pkg/cache"
	"github.com/chmcp/companies-house-mcp/pkg/clock"
	"github.com/chmcp/companies-house-mcp/pkg/config"
	"github.com/chmcp/companies-house-mcp/pkg/metrics"
	"github.com/chmcp/companies-house-mcp/pkg/models"
)

// maxBodySize caps how much of an upstream response is read.
const maxBodySize = 10 << 20

var errBodyTooLarge = errors.New("response body exceeds size limit")

// Operation names a logical registry call. It prefixes cache keys and labels
// metrics and ledger records.
type Operation string

const (
	OpSearchCompanies Operation = "search_companies"
	OpCompanyProfile  Operation = "company_profile"
	OpOfficers        Operation = "officers"
	OpFilingHistory   Operation = "filing_history"
	OpCharges         Operation = "charges"
	OpPSC             Operation = "psc"
	OpSearchOfficers  Operation = "search_officers"
)

// Recorder receives one record per gateway call.
type Recorder interface {
	Record(ctx context.Context, rec models.CallRecord) error
}

// Client mediates every outbound registry call. Create one per credential and
// share it; it is safe for concurrent use.
//
// Returned payloads may be shared with other callers through the cache and
// must be treated as read-only.
type Client struct {
	baseURL   *url.URL
	apiKey    string
	userAgent string
	timeout   time.Duration
	ttl       config.TTLConfig

	http     *http.Client
	budget   *budget.RateBudget
	cache    *cache.Cache
	clock    clock.Clock
	log      zerolog.Logger
	metrics  *metrics.Collector
	recorder Recorder
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for upstream calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithClock sets the clock driving the rate budget and cache expiry.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clock = clk }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) { c.metrics = m }
}

// WithRecorder attaches a call ledger.
func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New creates a Client from cfg. The config must carry an API key.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gateway: api key is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("gateway: invalid base URL %q", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		baseURL:   base,
		apiKey:    cfg.APIKey,
		userAgent: "chmcp",
		timeout:   timeout,
		ttl:       cfg.Cache.TTL,
		clock:     clock.Real{},
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.http == nil {
		c.http = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				DialContext:         (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: timeout,
		}
	}
	c.budget = budget.New(cfg.RateLimit.Capacity, cfg.RateLimit.Window, c.clock)
	c.cache = cache.New(cfg.Cache.MaxEntries, c.clock)

	c.metrics.TrackGateway(c.budget.Available, func() float64 { return float64(c.cache.Size()) })
	return c, nil
}

// SearchParams are the inputs of the two search operations.
type SearchParams struct {
	Query        string
	ItemsPerPage int
	StartIndex   int
}

// OfficersParams are the inputs of Officers.
type OfficersParams struct {
	CompanyNumber string
	ItemsPerPage  int
	StartIndex    int
	RegisterType  string // directors, secretaries or llp-members
	OrderBy       string // appointed_on, resigned_on or surname
}

// FilingHistoryParams are the inputs of FilingHistory.
type FilingHistoryParams struct {
	CompanyNumber string
	Category      string // comma-separated filing categories
	ItemsPerPage  int
	StartIndex    int
}

// PageParams are the inputs of the paged per-company listings.
type PageParams struct {
	CompanyNumber string
	ItemsPerPage  int
	StartIndex    int
}

// SearchCompanies searches companies by name or number.
func (c *Client) SearchCompanies(ctx context.Context, p SearchParams) (*models.CompanySearch, error) {
	q := pageQuery(p.ItemsPerPage, p.StartIndex)
	q.Set("q", strings.TrimSpace(p.Query))
	return fetch[models.CompanySearch](ctx, c, OpSearchCompanies, "/search/companies", q)
}

// CompanyProfile fetches a company's registered profile.
func (c *Client) CompanyProfile(ctx context.Context, companyNumber string) (*models.CompanyProfile, error) {
	return fetch[models.CompanyProfile](ctx, c, OpCompanyProfile, companyPath(companyNumber, ""), url.Values{})
}

// Officers lists a company's officers.
func (c *Client) Officers(ctx context.Context, p OfficersParams) (*models.OfficerList, error) {
	q := pageQuery(p.ItemsPerPage, p.StartIndex)
	setIf(q, "register_type", p.RegisterType)
	setIf(q, "order_by", p.OrderBy)
	return fetch[models.OfficerList](ctx, c, OpOfficers, companyPath(p.CompanyNumber, "/officers"), q)
}

// FilingHistory lists a company's filings, newest first.
func (c *Client) FilingHistory(ctx context.Context, p FilingHistoryParams) (*models.FilingHistory, error) {
	q := pageQuery(p.ItemsPerPage, p.StartIndex)
	setIf(q, "category", p.Category)
	return fetch[models.FilingHistory](ctx, c, OpFilingHistory, companyPath(p.CompanyNumber, "/filing-history"), q)
}

// Charges lists the charges registered against a company.
func (c *Client) Charges(ctx context.Context, p PageParams) (*models.ChargeList, error) {
	q := pageQuery(p.ItemsPerPage, p.StartIndex)
	return fetch[models.ChargeList](ctx, c, OpCharges, companyPath(p.CompanyNumber, "/charges"), q)
}

// PersonsWithSignificantControl lists a company's controlling persons.
func (c *Client) PersonsWithSignificantControl(ctx context.Context, p PageParams) (*models.PSCList, error) {
	q := pageQuery(p.ItemsPerPage, p.StartIndex)
	return fetch[models.PSCList](ctx, c, OpPSC, companyPath(p.CompanyNumber, "/persons-with-significant-control"), q)
}

// SearchOfficers searches officers across all companies.
func (c *Client) SearchOfficers(ctx context.Context, p SearchParams) (*models.OfficerSearch, error) {
	q := pageQuery(p.ItemsPerPage, p.StartIndex)
	q.Set("q", strings.TrimSpace(p.Query))
	return fetch[models.OfficerSearch](ctx, c, OpSearchOfficers, "/search/officers", q)
}

// CacheStats reports response cache counters.
func (c *Client) CacheStats() models.CacheStats {
	return c.cache.Stats()
}

// BudgetSnapshot reports the rate budget state.
func (c *Client) BudgetSnapshot() budget.Snapshot {
	return c.budget.Snapshot()
}

// ttlFor returns the cache freshness window of op.
func (c *Client) ttlFor(op Operation) time.Duration {
	switch op {
	case OpSearchCompanies:
		return c.ttl.SearchCompanies
	case OpCompanyProfile:
		return c.ttl.CompanyProfile
	case OpOfficers:
		return c.ttl.Officers
	case OpFilingHistory:
		return c.ttl.FilingHistory
	case OpCharges:
		return c.ttl.Charges
	case OpPSC:
		return c.ttl.PSC
	case OpSearchOfficers:
		return c.ttl.SearchOfficers
	}
	return 0
}

type normalizer interface {
	Normalize()
}

// fetch runs one operation: cache, admission, upstream call, classification,
// cache fill.
func fetch[T any, PT interface {
	*T
	normalizer
}](ctx context.Context, c *Client, op Operation, path string, query url.Values) (*T, error) {
	start := time.Now()
	call := models.CallRecord{
		RequestID: uuid.NewString(),
		Operation: string(op),
		CreatedAt: start.UTC(),
	}
	key := cacheKey(op, path, query)

	if v, ok := c.cache.Get(key); ok {
		if hit, ok := v.(*T); ok {
			call.Outcome = models.OutcomeHit
			c.finish(ctx, call, start, nil)
			return hit, nil
		}
	}

	decision := c.budget.TryAdmit()
	c.metrics.ObserveAdmission(decision.Allowed)
	if !decision.Allowed {
		gerr := Rejected(decision.RetryAfter)
		c.finish(ctx, call, start, gerr)
		return nil, gerr
	}

	body, status, gerr := c.get(ctx, op, path, query)
	call.StatusCode = status
	if gerr != nil {
		c.finish(ctx, call, start, gerr)
		return nil, gerr
	}

	out := new(T)
	if err := json.Unmarshal(body, out); err != nil {
		gerr := ClassifyDecode(status, err)
		c.finish(ctx, call, start, gerr)
		return nil, gerr
	}
	PT(out).Normalize()

	c.cache.Set(key, out, c.ttlFor(op))
	call.Outcome = models.OutcomeOK
	c.finish(ctx, call, start, nil)
	return out, nil
}

// get performs one authenticated GET bounded by the client timeout.
func (c *Client) get(ctx context.Context, op Operation, path string, query url.Values) ([]byte, int, *Error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target, err := url.Parse(strings.TrimRight(c.baseURL.String(), "/") + path)
	if err != nil {
		return nil, 0, ClassifyTransport(err)
	}
	target.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, 0, ClassifyTransport(err)
	}
	req.SetBasicAuth(c.apiKey, "")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, ClassifyTransport(err)
	}
	defer resp.Body.Close()

	if gerr := ClassifyStatus(resp.StatusCode, resp.Header); gerr != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		c.metrics.ObserveUpstream(string(op), time.Since(started))
		return nil, resp.StatusCode, gerr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	c.metrics.ObserveUpstream(string(op), time.Since(started))
	if err != nil {
		return nil, resp.StatusCode, ClassifyTransport(err)
	}
	if len(body) > maxBodySize {
		return nil, resp.StatusCode, ClassifyDecode(resp.StatusCode, errBodyTooLarge)
	}
	return body, resp.StatusCode, nil
}

// finish logs, meters and records a completed call.
func (c *Client) finish(ctx context.Context, call models.CallRecord, start time.Time, gerr *Error) {
	elapsed := time.Since(start)
	call.LatencyMs = elapsed.Milliseconds()
	if gerr != nil {
		call.Outcome = string(gerr.Kind)
		if gerr.Status != 0 {
			call.StatusCode = gerr.Status
		}
		c.log.Warn().
			Str("request_id", call.RequestID).
			Str("operation", call.Operation).
			Str("kind", string(gerr.Kind)).
			Int("status", call.StatusCode).
			Err(gerr.Unwrap()).
			Msg("registry call failed")
	} else {
		c.log.Debug().
			Str("request_id", call.RequestID).
			Str("operation", call.Operation).
			Str("outcome", call.Outcome).
			Int("status", call.StatusCode).
			Dur("latency", elapsed).
			Msg("registry call")
	}

	c.metrics.ObserveCall(call.Operation, call.Outcome)

	if c.recorder != nil {
		if err := c.recorder.Record(context.WithoutCancel(ctx), call); err != nil {
			c.log.Error().Err(err).Str("request_id", call.RequestID).Msg("record call")
		}
	}
}

// cacheKey is the operation name plus the canonical request path and query;
// url.Values.Encode sorts by key.
func cacheKey(op Operation, path string, query url.Values) string {
	return string(op) + ":" + path + "?" + query.Encode()
}

// companyPath builds a per-company path. Company numbers are case-insensitive
// upstream, so they are normalised before keying.
func companyPath(companyNumber, suffix string) string {
	number := strings.ToUpper(strings.TrimSpace(companyNumber))
	return "/company/" + url.PathEscape(number) + suffix
}

func pageQuery(itemsPerPage, startIndex int) url.Values {
	q := url.Values{}
	if itemsPerPage > 0 {
		q.Set("items_per_page", strconv.Itoa(itemsPerPage))
	}
	if startIndex > 0 {
		q.Set("start_index", strconv.Itoa(startIndex))
	}
	return q
}

func setIf(q url.Values, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		q.Set(key, v)
	}
}

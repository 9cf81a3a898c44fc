package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chmcp/companies-house-mcp/pkg/budget"
	"github.com/chmcp/companies-house-mcp/pkg/clock"
	"github.com/chmcp/companies-house-mcp/pkg/config"
	"github.com/chmcp/companies-house-mcp/pkg/metrics"
	"github.com/chmcp/companies-house-mcp/pkg/models"
)

var epoch = time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)

const profileJSON = `{
	"company_number": "00000006",
	"company_name": "MARINE AND GENERAL MUTUAL LIFE ASSURANCE SOCIETY",
	"company_status": "active",
	"type": "ltd",
	"date_of_creation": "1862-10-25",
	"registered_office_address": {"address_line_1": "1 Example Street", "locality": "London", "postal_code": "EC1A 1AA"},
	"has_charges": true
}`

// upstream is a fake registry API that counts requests.
type upstream struct {
	calls   atomic.Int64
	handler http.HandlerFunc
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.calls.Add(1)
	u.handler(w, r)
}

func jsonHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func newTestClient(t *testing.T, h http.HandlerFunc, mutate func(*config.Config), opts ...Option) (*Client, *upstream, *clock.Fake) {
	t.Helper()
	up := &upstream{handler: h}
	srv := httptest.NewServer(up)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.APIKey = "test-key"
	cfg.BaseURL = srv.URL
	cfg.Timeout = 2 * time.Second
	if mutate != nil {
		mutate(cfg)
	}

	clk := clock.NewFake(epoch)
	c, err := New(cfg, append([]Option{WithClock(clk)}, opts...)...)
	require.NoError(t, err)
	return c, up, clk
}

func TestNewValidation(t *testing.T) {
	cfg := config.Default()
	_, err := New(cfg)
	assert.Error(t, err, "missing api key")

	cfg.APIKey = "key"
	cfg.BaseURL = "::not-a-url"
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestCompanyProfileRequest(t *testing.T) {
	c, up, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "test-key", user)
		assert.Empty(t, pass)
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/company/00000006", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		jsonHandler(profileJSON)(w, r)
	}, nil)

	p, err := c.CompanyProfile(context.Background(), " 00000006 ")
	require.NoError(t, err)
	assert.Equal(t, "MARINE AND GENERAL MUTUAL LIFE ASSURANCE SOCIETY", p.CompanyName)
	assert.Equal(t, "London", p.RegisteredOfficeAddr.Locality)
	assert.True(t, p.HasCharges)
	assert.NotNil(t, p.SICCodes, "nil collections are normalised")
	assert.Equal(t, int64(1), up.calls.Load())
}

func TestQueryParameters(t *testing.T) {
	var got atomic.Value
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.URL.RawQuery)
		jsonHandler(`{"items":[]}`)(w, r)
	}, nil)
	ctx := context.Background()

	_, err := c.SearchCompanies(ctx, SearchParams{Query: "tesco", ItemsPerPage: 10, StartIndex: 20})
	require.NoError(t, err)
	assert.Equal(t, "items_per_page=10&q=tesco&start_index=20", got.Load())

	_, err = c.Officers(ctx, OfficersParams{CompanyNumber: "x1", RegisterType: "directors", OrderBy: "surname"})
	require.NoError(t, err)
	assert.Equal(t, "order_by=surname&register_type=directors", got.Load())

	_, err = c.FilingHistory(ctx, FilingHistoryParams{CompanyNumber: "x1", Category: "accounts"})
	require.NoError(t, err)
	assert.Equal(t, "category=accounts", got.Load())
}

func TestOperationPaths(t *testing.T) {
	var got atomic.Value
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.URL.Path)
		jsonHandler(`{}`)(w, r)
	}, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
		path string
	}{
		{"search companies", func() error { _, err := c.SearchCompanies(ctx, SearchParams{Query: "a"}); return err }, "/search/companies"},
		{"profile", func() error { _, err := c.CompanyProfile(ctx, "sc1"); return err }, "/company/SC1"},
		{"officers", func() error { _, err := c.Officers(ctx, OfficersParams{CompanyNumber: "sc1"}); return err }, "/company/SC1/officers"},
		{"filings", func() error { _, err := c.FilingHistory(ctx, FilingHistoryParams{CompanyNumber: "sc1"}); return err }, "/company/SC1/filing-history"},
		{"charges", func() error { _, err := c.Charges(ctx, PageParams{CompanyNumber: "sc1"}); return err }, "/company/SC1/charges"},
		{"psc", func() error {
			_, err := c.PersonsWithSignificantControl(ctx, PageParams{CompanyNumber: "sc1"})
			return err
		}, "/company/SC1/persons-with-significant-control"},
		{"search officers", func() error { _, err := c.SearchOfficers(ctx, SearchParams{Query: "a"}); return err }, "/search/officers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.call())
			assert.Equal(t, tt.path, got.Load())
		})
	}
}

func TestCacheHitSkipsUpstreamAndBudget(t *testing.T) {
	c, up, _ := newTestClient(t, jsonHandler(profileJSON), func(cfg *config.Config) {
		cfg.RateLimit.Capacity = 1
		cfg.RateLimit.Window = time.Hour
	})
	ctx := context.Background()

	first, err := c.CompanyProfile(ctx, "00000006")
	require.NoError(t, err)
	assert.InDelta(t, 0.0, c.BudgetSnapshot().Available, 1e-9)

	for i := 0; i < 5; i++ {
		again, err := c.CompanyProfile(ctx, "00000006")
		require.NoError(t, err, "cached call must not need a token")
		assert.Same(t, first, again)
	}
	assert.Equal(t, int64(1), up.calls.Load())

	stats := c.CacheStats()
	assert.Equal(t, int64(5), stats.Hits)
	assert.Equal(t, int64(1), stats.Entries)
}

func TestCompanyNumberCaseSharesCacheEntry(t *testing.T) {
	c, up, _ := newTestClient(t, jsonHandler(profileJSON), nil)
	ctx := context.Background()

	_, err := c.CompanyProfile(ctx, "sc123456")
	require.NoError(t, err)
	_, err = c.CompanyProfile(ctx, "SC123456")
	require.NoError(t, err)
	assert.Equal(t, int64(1), up.calls.Load())
}

func TestDistinctParamsAreDistinctEntries(t *testing.T) {
	c, up, _ := newTestClient(t, jsonHandler(`{"items":[]}`), nil)
	ctx := context.Background()

	_, _ = c.SearchCompanies(ctx, SearchParams{Query: "tesco"})
	_, _ = c.SearchCompanies(ctx, SearchParams{Query: "tesco", ItemsPerPage: 5})
	_, _ = c.SearchOfficers(ctx, SearchParams{Query: "tesco"})
	_, _ = c.SearchCompanies(ctx, SearchParams{Query: "tesco"})
	assert.Equal(t, int64(3), up.calls.Load())
}

func TestPerOperationTTL(t *testing.T) {
	c, up, clk := newTestClient(t, jsonHandler(`{"items":[]}`), nil)
	ctx := context.Background()

	_, err := c.FilingHistory(ctx, FilingHistoryParams{CompanyNumber: "1"})
	require.NoError(t, err)
	_, err = c.Charges(ctx, PageParams{CompanyNumber: "1"})
	require.NoError(t, err)
	require.Equal(t, int64(2), up.calls.Load())

	clk.Advance(2 * time.Minute)
	_, _ = c.FilingHistory(ctx, FilingHistoryParams{CompanyNumber: "1"})
	_, _ = c.Charges(ctx, PageParams{CompanyNumber: "1"})
	assert.Equal(t, int64(3), up.calls.Load(), "filings expire after 2m, charges stay fresh")

	clk.Advance(28 * time.Minute)
	_, _ = c.Charges(ctx, PageParams{CompanyNumber: "1"})
	assert.Equal(t, int64(4), up.calls.Load())
}

func TestZeroTTLDisablesCaching(t *testing.T) {
	c, up, _ := newTestClient(t, jsonHandler(profileJSON), func(cfg *config.Config) {
		cfg.Cache.TTL.CompanyProfile = 0
	})
	ctx := context.Background()
	_, _ = c.CompanyProfile(ctx, "1")
	_, _ = c.CompanyProfile(ctx, "1")
	assert.Equal(t, int64(2), up.calls.Load())
}

func TestCacheEvictionThroughClient(t *testing.T) {
	c, up, _ := newTestClient(t, jsonHandler(profileJSON), func(cfg *config.Config) {
		cfg.Cache.MaxEntries = 1
	})
	ctx := context.Background()
	_, _ = c.CompanyProfile(ctx, "A")
	_, _ = c.CompanyProfile(ctx, "B")
	_, _ = c.CompanyProfile(ctx, "A")
	assert.Equal(t, int64(3), up.calls.Load())
	assert.Equal(t, int64(2), c.CacheStats().Evictions)
}

func TestLocalRateLimit(t *testing.T) {
	c, up, clk := newTestClient(t, jsonHandler(profileJSON), func(cfg *config.Config) {
		cfg.RateLimit.Capacity = 2
		cfg.RateLimit.Window = time.Second
	})
	ctx := context.Background()

	_, err := c.CompanyProfile(ctx, "1")
	require.NoError(t, err)
	_, err = c.CompanyProfile(ctx, "2")
	require.NoError(t, err)

	_, err = c.CompanyProfile(ctx, "3")
	require.Error(t, err)
	var gerr *Error
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, KindRateLimit, gerr.Kind)
	assert.Equal(t, 500*time.Millisecond, gerr.RetryAfter)
	assert.Zero(t, gerr.Status)
	assert.ErrorIs(t, err, budget.ErrRejected)
	assert.Equal(t, int64(2), up.calls.Load(), "rejected call never reaches upstream")

	// Cached entries remain available while the budget is exhausted.
	_, err = c.CompanyProfile(ctx, "1")
	assert.NoError(t, err)

	clk.Advance(500 * time.Millisecond)
	_, err = c.CompanyProfile(ctx, "3")
	assert.NoError(t, err)
}

func TestBudgetSharedAcrossOperations(t *testing.T) {
	c, _, _ := newTestClient(t, jsonHandler(`{"items":[]}`), func(cfg *config.Config) {
		cfg.RateLimit.Capacity = 2
		cfg.RateLimit.Window = time.Hour
	})
	ctx := context.Background()

	_, err := c.SearchCompanies(ctx, SearchParams{Query: "a"})
	require.NoError(t, err)
	_, err = c.SearchCompanies(ctx, SearchParams{Query: "b"})
	require.NoError(t, err)

	_, err = c.Charges(ctx, PageParams{CompanyNumber: "1"})
	assert.Equal(t, KindRateLimit, KindOf(err))
}

func TestUpstreamErrorsAreClassifiedAndNotCached(t *testing.T) {
	tests := []struct {
		status int
		kind   Kind
	}{
		{http.StatusUnauthorized, KindAuthentication},
		{http.StatusNotFound, KindNotFound},
		{http.StatusTooManyRequests, KindRateLimit},
		{http.StatusInternalServerError, KindService},
		{http.StatusServiceUnavailable, KindService},
		{http.StatusBadRequest, KindAPI},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			c, up, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"errors":[{"error":"company-profile-not-found","type":"ch:service"}]}`))
			}, nil)
			ctx := context.Background()

			_, err := c.CompanyProfile(ctx, "00000000")
			var gerr *Error
			require.True(t, errors.As(err, &gerr))
			assert.Equal(t, tt.kind, gerr.Kind)
			assert.Equal(t, tt.status, gerr.Status)
			assert.NotContains(t, gerr.Message, "test-key")

			_, err = c.CompanyProfile(ctx, "00000000")
			assert.Error(t, err)
			assert.Equal(t, int64(2), up.calls.Load(), "failures are not cached")
			assert.Equal(t, int64(0), c.CacheStats().Entries)
		})
	}
}

func TestNetworkErrorThenRetrySucceeds(t *testing.T) {
	var n atomic.Int64
	c, up, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if n.Add(1) == 1 {
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			_ = conn.Close()
			return
		}
		jsonHandler(profileJSON)(w, r)
	}, nil)
	ctx := context.Background()

	_, err := c.CompanyProfile(ctx, "00000006")
	assert.Equal(t, KindNetwork, KindOf(err))
	assert.Equal(t, int64(0), c.CacheStats().Entries)

	p, err := c.CompanyProfile(ctx, "00000006")
	require.NoError(t, err)
	assert.Equal(t, "00000006", p.CompanyNumber)
	assert.Equal(t, int64(2), up.calls.Load())
}

func TestUnreachableUpstream(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	cfg := config.Default()
	cfg.APIKey = "k"
	cfg.BaseURL = base
	c, err := New(cfg)
	require.NoError(t, err)

	_, err = c.CompanyProfile(context.Background(), "1")
	var gerr *Error
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, KindNetwork, gerr.Kind)
	assert.Zero(t, gerr.Status)
}

func TestTimeoutIsNetworkError(t *testing.T) {
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, func(cfg *config.Config) {
		cfg.Timeout = 50 * time.Millisecond
	})

	_, err := c.CompanyProfile(context.Background(), "1")
	var gerr *Error
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, KindNetwork, gerr.Kind)
	assert.Contains(t, gerr.Message, "did not respond in time")
	assert.Equal(t, int64(0), c.CacheStats().Entries)
}

func TestMalformedPayload(t *testing.T) {
	c, up, _ := newTestClient(t, jsonHandler(`{"company_number": `), nil)
	ctx := context.Background()

	_, err := c.CompanyProfile(ctx, "1")
	var gerr *Error
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, KindAPI, gerr.Kind)
	assert.Equal(t, http.StatusOK, gerr.Status)

	_, _ = c.CompanyProfile(ctx, "1")
	assert.Equal(t, int64(2), up.calls.Load())
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []models.CallRecord
}

func (f *fakeRecorder) Record(_ context.Context, rec models.CallRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func TestRecorderAndMetrics(t *testing.T) {
	rec := &fakeRecorder{}
	m := metrics.New()
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/company/MISSING" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		jsonHandler(profileJSON)(w, r)
	}, nil, WithRecorder(rec), WithMetrics(m))
	ctx := context.Background()

	_, _ = c.CompanyProfile(ctx, "1")
	_, _ = c.CompanyProfile(ctx, "1")
	_, _ = c.CompanyProfile(ctx, "missing")

	require.Len(t, rec.records, 3)
	assert.Equal(t, models.OutcomeOK, rec.records[0].Outcome)
	assert.Equal(t, http.StatusOK, rec.records[0].StatusCode)
	assert.Equal(t, models.OutcomeHit, rec.records[1].Outcome)
	assert.Equal(t, string(KindNotFound), rec.records[2].Outcome)
	assert.Equal(t, http.StatusNotFound, rec.records[2].StatusCode)
	for _, r := range rec.records {
		assert.Equal(t, string(OpCompanyProfile), r.Operation)
		assert.NotEmpty(t, r.RequestID)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Calls.WithLabelValues("company_profile", "hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Admissions.WithLabelValues("admitted")))
}

func TestConcurrentCallsShareOneBudget(t *testing.T) {
	c, up, _ := newTestClient(t, jsonHandler(`{"items":[]}`), func(cfg *config.Config) {
		cfg.RateLimit.Capacity = 5
		cfg.RateLimit.Window = time.Hour
	})
	ctx := context.Background()

	var ok, limited atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.SearchCompanies(ctx, SearchParams{Query: fmt.Sprintf("q%d", i)})
			switch KindOf(err) {
			case "":
				ok.Add(1)
			case KindRateLimit:
				limited.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(5), ok.Load())
	assert.Equal(t, int64(15), limited.Load())
	assert.Equal(t, int64(5), up.calls.Load())
}

package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"outbreak/internal/ratelimit/metrics"
	"outbreak/internal/ratelimit/models"
	"outbreak/internal/ratelimit/store/bucket"
	dErrors "outbreak/pkg/domain-errors"
	"outbreak/pkg/testutil"
)

type failingStore struct{}

func (failingStore) Allow(context.Context, string, int, time.Duration) (*models.RateLimitResult, error) {
	return nil, errors.New("redis: connection refused")
}

type RateLimitSuite struct {
	suite.Suite
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func TestRateLimitSuite(t *testing.T) {
	suite.Run(t, new(RateLimitSuite))
}

func (s *RateLimitSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
}

func (s *RateLimitSuite) handler(m *Middleware, class models.EndpointClass) http.Handler {
	return m.RateLimit(class)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
}

func request(ip string) *http.Request {
	return testutil.WithClient(httptest.NewRequest(http.MethodPost, "/registrations", nil), ip, "test")
}

func (s *RateLimitSuite) TestDeniesAfterLimit() {
	m := New(bucket.NewInMemoryBucketStore(), s.logger,
		WithPolicy(models.ClassSubmit, 2, time.Minute),
		WithMetrics(s.metrics),
	)
	h := s.handler(m, models.ClassSubmit)

	for i := range 2 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, request("10.0.0.1"))
		s.Require().Equal(http.StatusNoContent, rec.Code)
		s.Equal("2", rec.Header().Get("X-RateLimit-Limit"))
		s.Equal([]string{"1", "0"}[i], rec.Header().Get("X-RateLimit-Remaining"))
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, request("10.0.0.1"))
	s.Equal(http.StatusTooManyRequests, rec.Code)
	s.NotEmpty(rec.Header().Get("Retry-After"))
	s.Contains(rec.Body.String(), string(dErrors.CodeRateLimited))
	s.Contains(rec.Body.String(), MsgTooManyRequests)

	s.InDelta(2, promtest.ToFloat64(s.metrics.Decisions.WithLabelValues("submit", "allowed")), 0)
	s.InDelta(1, promtest.ToFloat64(s.metrics.Decisions.WithLabelValues("submit", "denied")), 0)
}

func (s *RateLimitSuite) TestKeysByClientAndClass() {
	m := New(bucket.NewInMemoryBucketStore(), s.logger,
		WithPolicy(models.ClassSubmit, 1, time.Minute),
		WithPolicy(models.ClassLookup, 1, time.Minute),
	)

	rec := httptest.NewRecorder()
	s.handler(m, models.ClassSubmit).ServeHTTP(rec, request("10.0.0.1"))
	s.Require().Equal(http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	s.handler(m, models.ClassSubmit).ServeHTTP(rec, request("10.0.0.2"))
	s.Equal(http.StatusNoContent, rec.Code, "other client has its own window")

	rec = httptest.NewRecorder()
	s.handler(m, models.ClassLookup).ServeHTTP(rec, request("10.0.0.1"))
	s.Equal(http.StatusNoContent, rec.Code, "other class has its own window")
}

func (s *RateLimitSuite) TestDisabled() {
	m := New(bucket.NewInMemoryBucketStore(), s.logger,
		WithDisabled(true),
		WithPolicy(models.ClassSubmit, 1, time.Minute),
	)
	h := s.handler(m, models.ClassSubmit)
	for range 3 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, request("10.0.0.1"))
		s.Equal(http.StatusNoContent, rec.Code)
		s.Empty(rec.Header().Get("X-RateLimit-Limit"))
	}
}

func (s *RateLimitSuite) TestStoreFailureFailsOpen() {
	m := New(failingStore{}, s.logger, WithMetrics(s.metrics))

	rec := httptest.NewRecorder()
	s.handler(m, models.ClassAdmin).ServeHTTP(rec, request("10.0.0.1"))

	s.Equal(http.StatusNoContent, rec.Code)
	s.InDelta(1, promtest.ToFloat64(s.metrics.StoreErrors), 0)
}

func TestAnonymizeIP(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"203.0.113.77", "203.0.113.0/24"},
		{"::ffff:203.0.113.77", "203.0.113.0/24"},
		{"2001:db8:abcd:12::1", "2001:db8:abcd::/48"},
		{"not-an-ip", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, anonymizeIP(tt.in))
		})
	}
	require.Empty(t, anonymizeIP(""))
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"sslScope/internal/density"
	"sslScope/internal/dex"
	"sslScope/internal/metrics"
	"sslScope/internal/model"
	"sslScope/internal/ranges"
	"sslScope/internal/ticks"
)

const (
	DefaultSessionTTL = 15 * time.Minute
	DefaultRangeTicks = 10
)

// PoolLister lists the pools offered for selection.
type PoolLister interface {
	TopPools(ctx context.Context, n int) ([]model.PoolSummary, error)
}

// StatusSource serves the latest polled vault status.
type StatusSource interface {
	Latest() (*ranges.Status, time.Time, error)
}

// Options wires the server to its readers. Nil optional fields disable the
// routes that need them.
type Options struct {
	Fetcher  density.Fetcher
	Builder  density.Builder
	Pools    ticks.PoolReader
	Resolver *ranges.Resolver
	TopPools PoolLister
	Status   StatusSource
	// Gatherer backs /metrics.
	Gatherer prometheus.Gatherer

	InitialTicks int
	ZoomInterval int
	RangeTicks   int32
	SessionTTL   time.Duration
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
}

// Server serves density charts, deposit ranges and the vault status. A chart
// session is kept per pool and highlight bounds and expires after SessionTTL
// without use. Sessions share in-flight tick fetches.
type Server struct {
	opts     Options
	logger   *zap.Logger
	fetches  *singleflight.Group
	mu       sync.Mutex
	sessions *cache.Cache
}

func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.RangeTicks <= 0 {
		opts.RangeTicks = DefaultRangeTicks
	}
	s := &Server{
		opts:     opts,
		logger:   opts.Logger,
		fetches:  new(singleflight.Group),
		sessions: cache.New(opts.SessionTTL, opts.SessionTTL/2),
	}
	s.sessions.OnEvicted(func(key string, _ interface{}) {
		s.opts.Metrics.SetSessions(s.sessions.ItemCount())
		s.logger.Debug("chart session expired", zap.String("session", key))
	})
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.opts.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("GET /pools", s.handlePools)
	mux.HandleFunc("GET /pools/{address}/density", s.handleDensity)
	mux.HandleFunc("POST /pools/{address}/zoom-in", s.handleZoomIn)
	mux.HandleFunc("POST /pools/{address}/zoom-out", s.handleZoomOut)
	mux.HandleFunc("GET /pools/{address}/range", s.handleRange)
	mux.HandleFunc("GET /vault/status", s.handleStatus)
	return mux
}

func sessionKey(pool common.Address, lower, upper *big.Int) string {
	key := strings.ToLower(pool.Hex())
	if lower == nil || upper == nil {
		return key
	}
	return key + "/" + lower.String() + "/" + upper.String()
}

// chart returns the session for a pool and its highlight bounds. Clients
// highlighting different ranges get separate sessions.
func (s *Server) chart(pool common.Address, lower, upper *big.Int) *density.Chart {
	key := sessionKey(pool, lower, upper)

	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.sessions.Get(key); ok {
		chart := v.(*density.Chart)
		s.sessions.SetDefault(key, chart)
		return chart
	}
	chart := density.NewChart(s.opts.Fetcher, s.opts.Builder, density.Options{
		Pools:        s.opts.Pools,
		InitialTicks: s.opts.InitialTicks,
		ZoomInterval: s.opts.ZoomInterval,
		Group:        s.fetches,
		Metrics:      s.opts.Metrics,
		Logger:       s.logger.With(zap.String("pool", pool.Hex())),
	})
	chart.SetPool(pool)
	chart.SetBounds(lower, upper)
	s.sessions.SetDefault(key, chart)
	s.opts.Metrics.SetSessions(s.sessions.ItemCount())
	return chart
}

func (s *Server) handlePools(w http.ResponseWriter, r *http.Request) {
	if s.opts.TopPools == nil {
		writeError(w, http.StatusNotFound, errors.New("pool list is not configured"))
		return
	}
	n := 0
	if raw := r.URL.Query().Get("first"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > 1000 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid first: %q", raw))
			return
		}
		n = v
	}
	pools, err := s.opts.TopPools.TopPools(r.Context(), n)
	if err != nil {
		s.logger.Warn("top pools failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, pools)
}

// handleDensity takes either explicit sqrt-price bounds (lower, upper) or a
// deposit to resolve them from (asset, ticks, vault). The zoom routes take
// the same parameters to address the same session.
func (s *Server) handleDensity(w http.ResponseWriter, r *http.Request) {
	chart, ok := s.sessionParam(w, r)
	if !ok {
		return
	}
	s.loadAndWrite(w, r, chart)
}

func (s *Server) handleZoomIn(w http.ResponseWriter, r *http.Request) {
	chart, ok := s.sessionParam(w, r)
	if !ok {
		return
	}
	chart.ZoomIn()
	s.loadAndWrite(w, r, chart)
}

func (s *Server) handleZoomOut(w http.ResponseWriter, r *http.Request) {
	chart, ok := s.sessionParam(w, r)
	if !ok {
		return
	}
	if err := chart.ZoomOut(r.Context()); err != nil {
		s.writeLoadError(w, chart, err)
		return
	}
	s.loadAndWrite(w, r, chart)
}

func (s *Server) loadAndWrite(w http.ResponseWriter, r *http.Request, chart *density.Chart) {
	if err := chart.Load(r.Context()); err != nil {
		s.writeLoadError(w, chart, err)
		return
	}
	writeJSON(w, http.StatusOK, chart.Data())
}

type loadFailure struct {
	Error string            `json:"error"`
	Chart density.ChartData `json:"chart"`
}

// writeLoadError reports a failed load together with the chart data still
// installed.
func (s *Server) writeLoadError(w http.ResponseWriter, chart *density.Chart, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, ticks.ErrFetch) {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, loadFailure{Error: err.Error(), Chart: chart.Data()})
}

func (s *Server) handleRange(w http.ResponseWriter, r *http.Request) {
	pool, ok := s.poolParam(w, r)
	if !ok {
		return
	}
	res, err := s.resolve(r, pool)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Status == nil {
		writeError(w, http.StatusNotFound, errors.New("vault status is not configured"))
		return
	}
	status, updated, err := s.opts.Status.Latest()
	if status == nil {
		if err == nil {
			err = errors.New("vault status not loaded yet")
		}
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	body := struct {
		Status    *ranges.Status `json:"status"`
		UpdatedAt time.Time      `json:"updated_at"`
		LastError string         `json:"last_error,omitempty"`
	}{Status: status, UpdatedAt: updated}
	if err != nil {
		body.LastError = err.Error()
	}
	writeJSON(w, http.StatusOK, body)
}

type badRequest struct{ error }

func (e badRequest) Unwrap() error { return e.error }

func statusFor(err error) int {
	var br badRequest
	if errors.As(err, &br) {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

func (s *Server) poolParam(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	pool, err := dex.ParseAddress(r.PathValue("address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return common.Address{}, false
	}
	return pool, true
}

func (s *Server) sessionParam(w http.ResponseWriter, r *http.Request) (*density.Chart, bool) {
	pool, ok := s.poolParam(w, r)
	if !ok {
		return nil, false
	}
	lower, upper, err := s.boundsParams(r, pool)
	if err != nil {
		writeError(w, statusFor(err), err)
		return nil, false
	}
	return s.chart(pool, lower, upper), true
}

func (s *Server) boundsParams(r *http.Request, pool common.Address) (*big.Int, *big.Int, error) {
	q := r.URL.Query()
	if q.Get("asset") != "" || q.Get("vault") != "" {
		res, err := s.resolve(r, pool)
		if err != nil {
			return nil, nil, err
		}
		if !res.Defined {
			return nil, nil, nil
		}
		return res.Bounds.Lower, res.Bounds.Upper, nil
	}

	rawLower, rawUpper := q.Get("lower"), q.Get("upper")
	if rawLower == "" && rawUpper == "" {
		return nil, nil, nil
	}
	lower, ok := new(big.Int).SetString(rawLower, 10)
	if !ok || lower.Sign() < 0 {
		return nil, nil, badRequest{fmt.Errorf("invalid lower: %q", rawLower)}
	}
	upper, ok := new(big.Int).SetString(rawUpper, 10)
	if !ok || upper.Sign() < 0 {
		return nil, nil, badRequest{fmt.Errorf("invalid upper: %q", rawUpper)}
	}
	if lower.Cmp(upper) > 0 {
		return nil, nil, badRequest{errors.New("lower must not exceed upper")}
	}
	return lower, upper, nil
}

func (s *Server) resolve(r *http.Request, pool common.Address) (ranges.Resolution, error) {
	if s.opts.Resolver == nil {
		return ranges.Resolution{}, badRequest{errors.New("range resolver is not configured")}
	}
	q := r.URL.Query()
	asset, err := model.ParseAsset(q.Get("asset"))
	if err != nil {
		return ranges.Resolution{}, badRequest{err}
	}
	count := s.opts.RangeTicks
	if raw := q.Get("ticks"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || v <= 0 {
			return ranges.Resolution{}, badRequest{fmt.Errorf("invalid ticks: %q", raw)}
		}
		count = int32(v)
	}
	var vault *common.Address
	if raw := q.Get("vault"); raw != "" {
		addr, err := dex.ParseAddress(raw)
		if err != nil {
			return ranges.Resolution{}, badRequest{err}
		}
		vault = &addr
	}
	return s.opts.Resolver.ResolveDepositRange(r.Context(), pool, vault, asset, count)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

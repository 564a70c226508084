// Package dashboard serves a read-only JSON view of the trade ledger.
package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/wfarrell/condortrack/internal/analytics"
	"github.com/wfarrell/condortrack/internal/marketdata"
	"github.com/wfarrell/condortrack/internal/models"
	"github.com/wfarrell/condortrack/internal/storage"
)

// Server exposes the ledger over HTTP. All endpoints are read-only; trade
// state is only ever mutated by the builder and the monitor.
type Server struct {
	router   *chi.Mux
	server   *http.Server
	storage  storage.Interface
	provider marketdata.Provider
	logger   *logrus.Logger
	symbols  []string
	port     int
}

// Config holds dashboard server settings.
type Config struct {
	Port    int
	Symbols []string
}

// TradeView is a trade joined with its legs and latest analysis.
type TradeView struct {
	models.Trade
	Legs     []models.Leg  `json:"legs"`
	Analysis *AnalysisView `json:"analysis,omitempty"`
}

// AnalysisView renders a PLAnalysis over the wire. Unbracketed breakevens
// are NaN in the model, which encoding/json cannot represent, so they are
// surfaced as nullable fields instead.
type AnalysisView struct {
	models.PLAnalysis
	BreakevenLower *float64 `json:"breakeven_lower"`
	BreakevenUpper *float64 `json:"breakeven_upper"`
}

func newAnalysisView(a *models.PLAnalysis) *AnalysisView {
	if a == nil {
		return nil
	}
	return &AnalysisView{
		PLAnalysis:     *a,
		BreakevenLower: finiteOrNil(a.BreakevenLower),
		BreakevenUpper: finiteOrNil(a.BreakevenUpper),
	}
}

func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Statistics summarizes the ledger for one symbol.
type Statistics struct {
	Symbol        string  `json:"symbol"`
	TotalTrades   int     `json:"total_trades"`
	ActiveTrades  int     `json:"active_trades"`
	ClosedTrades  int     `json:"closed_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	TotalPnL      float64 `json:"total_pnl"`
	AveragePnL    float64 `json:"average_pnl"`
}

// NewServer creates a dashboard server bound to the given storage and
// market data provider.
func NewServer(cfg Config, store storage.Interface, provider marketdata.Provider, logger *logrus.Logger) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		storage:  store,
		provider: provider,
		logger:   logger,
		symbols:  cfg.Symbols,
		port:     cfg.Port,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/trades", s.handleListTrades)
	s.router.Get("/api/trades/{id}", s.handleGetTrade)
	s.router.Get("/api/stats", s.handleStats)
	s.router.Get("/api/volatility", s.handleVolatility)
	s.router.Get("/api/gex", s.handleGEX)
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Infof("Starting dashboard server on port %d", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Handler returns the underlying router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	symbols := s.symbols
	if sym := r.URL.Query().Get("symbol"); sym != "" {
		symbols = []string{sym}
	}

	trades := make([]models.Trade, 0)
	for _, sym := range symbols {
		rows, err := s.storage.ListTrades(r.Context(), sym)
		if err != nil {
			s.logger.WithError(err).Error("Failed to list trades")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		trades = append(trades, rows...)
	}

	s.writeJSON(w, trades)
}

func (s *Server) handleGetTrade(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	trade, err := s.storage.GetTrade(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrTradeNotFound) {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
		s.logger.WithError(err).Error("Failed to load trade")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	legs, err := s.storage.TradeLegs(r.Context(), id)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load trade legs")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	view := TradeView{Trade: *trade, Legs: legs}
	if analysis, err := s.storage.LatestAnalysis(r.Context(), id); err == nil {
		view.Analysis = newAnalysisView(analysis)
	} else if !errors.Is(err, storage.ErrNoAnalysis) {
		s.logger.WithError(err).Warn("Failed to load trade analysis")
	}

	s.writeJSON(w, view)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := make([]Statistics, 0, len(s.symbols))
	for _, sym := range s.symbols {
		st, err := s.calculateStatistics(r.Context(), sym)
		if err != nil {
			s.logger.WithError(err).Error("Failed to calculate statistics")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		stats = append(stats, *st)
	}

	s.writeJSON(w, stats)
}

func (s *Server) handleVolatility(w http.ResponseWriter, r *http.Request) {
	sym := r.URL.Query().Get("symbol")
	if sym == "" && len(s.symbols) > 0 {
		sym = s.symbols[0]
	}

	readings, err := analytics.RealizedVolatilities(r.Context(), s.storage, sym)
	if err != nil {
		s.logger.WithError(err).Error("Failed to compute realized volatility")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if readings == nil {
		readings = []analytics.VolReading{}
	}

	s.writeJSON(w, readings)
}

func (s *Server) handleGEX(w http.ResponseWriter, r *http.Request) {
	if s.provider == nil {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	sym := r.URL.Query().Get("symbol")
	if sym == "" && len(s.symbols) > 0 {
		sym = s.symbols[0]
	}
	expiration := r.URL.Query().Get("expiration")
	if expiration == "" {
		expiration = time.Now().UTC().Format("2006-01-02")
	}

	chain, err := s.provider.GetOptionChain(r.Context(), sym, expiration)
	if err != nil {
		if errors.Is(err, marketdata.ErrEmptyChain) {
			s.writeJSON(w, analytics.GEXProfile{Strikes: []analytics.StrikeGEX{}})
			return
		}
		s.logger.WithError(err).Error("Failed to fetch option chain")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, analytics.ComputeGEX(chain))
}

func (s *Server) calculateStatistics(ctx context.Context, symbol string) (*Statistics, error) {
	trades, err := s.storage.ListTrades(ctx, symbol)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{Symbol: symbol}
	for _, tr := range trades {
		stats.TotalTrades++
		if tr.Status == models.TradeActive {
			stats.ActiveTrades++
			continue
		}
		stats.ClosedTrades++
		stats.TotalPnL += tr.PnL
		if tr.PnL > 0 {
			stats.WinningTrades++
		} else {
			stats.LosingTrades++
		}
	}

	if stats.ClosedTrades > 0 {
		stats.WinRate = float64(stats.WinningTrades) / float64(stats.ClosedTrades) * 100
		stats.AveragePnL = stats.TotalPnL / float64(stats.ClosedTrades)
	}

	return stats, nil
}

// writeJSON encodes to a buffer before touching the response so an encoding
// failure can still produce a 500 instead of a 200 with an empty body.
func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.WithError(err).Warn("Failed to write response")
	}
}

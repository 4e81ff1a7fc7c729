// Package web exposes loading state and balances to the dashboard over HTTP.
package web

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/vadiminshakov/truthboard/internal/balance"
	"github.com/vadiminshakov/truthboard/internal/domain"
	"github.com/vadiminshakov/truthboard/internal/events"
)

const (
	snapshotPollInterval = 2 * time.Second
	heartbeatInterval    = 30 * time.Second
)

type loadingState interface {
	Status() domain.LoadingStatus
	ClearAll()
	Active() []domain.TrackedRequest
	History() []domain.TrackedRequest
}

type balanceFetcher interface {
	Fetch(ctx context.Context, account domain.Account) (domain.Portfolio, error)
}

type balanceSnapshotReader interface {
	SnapshotsAfter(index uint64) ([]domain.BalanceSnapshotRecord, error)
	AccountSnapshotsAfter(account string, index uint64) ([]domain.BalanceSnapshotRecord, error)
	Latest(account string) (domain.BalanceSnapshot, bool, error)
}

// Server exposes HTTP endpoints for the UI overlay and balance views.
type Server struct {
	Addr    string
	Loading loadingState
	Updates *events.Broadcaster[domain.LoadingStatus]
	Fetcher balanceFetcher
	Store   balanceSnapshotReader
	Metrics http.Handler

	// Refreshes wakes balance streams as soon as a refreshed portfolio has
	// been persisted. Without it streams fall back to polling the store.
	Refreshes *events.Broadcaster[domain.Portfolio]

	logger *zap.Logger
}

// NewServer creates a new web server instance. Store and Metrics may be nil.
func NewServer(addr string, loading loadingState, updates *events.Broadcaster[domain.LoadingStatus],
	fetcher balanceFetcher, store balanceSnapshotReader, metrics http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		Addr:    addr,
		Loading: loading,
		Updates: updates,
		Fetcher: fetcher,
		Store:   store,
		Metrics: metrics,
		logger:  logger,
	}
}

// Handler returns the routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /loading", s.handleLoading)
	mux.HandleFunc("GET /loading/stream", s.handleLoadingStream)
	mux.HandleFunc("POST /loading/clear", s.handleLoadingClear)
	mux.HandleFunc("GET /requests", s.handleRequests)
	mux.HandleFunc("GET /balances", s.handleBalances)
	mux.HandleFunc("GET /balances/stream", s.handleBalanceStream)
	mux.HandleFunc("GET /balances/latest", s.handleLatestBalance)
	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics)
	}
	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("dashboard backend listening", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartWithAutoTLS serves HTTPS on Addr with Let's Encrypt certificates for
// domains and answers ACME challenges on :80. Blocks until ctx is cancelled.
func (s *Server) StartWithAutoTLS(ctx context.Context, domains []string, cacheDir string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(domains) == 0 {
		return fmt.Errorf("no domains provided for automatic TLS")
	}
	if cacheDir == "" {
		cacheDir = "cert-cache"
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}

	httpSrv := &http.Server{
		Addr:              ":80",
		Handler:           manager.HTTPHandler(nil),
		ReadHeaderTimeout: 5 * time.Second,
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12
	httpsSrv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		TLSConfig:         tlsConfig,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("acme server shutdown", zap.Error(err))
		}
		if err := httpsSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("https server shutdown", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("acme server failed", zap.Error(err))
		}
	}()

	s.logger.Info("dashboard backend listening with automatic TLS",
		zap.String("addr", s.Addr), zap.Strings("domains", domains))
	if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleLoading(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Loading.Status())
}

func (s *Server) handleLoadingClear(w http.ResponseWriter, r *http.Request) {
	s.Loading.ClearAll()
	s.logger.Debug("loading state cleared", zap.String("remote", r.RemoteAddr))
	writeJSON(w, http.StatusOK, s.Loading.Status())
}

type requestsResponse struct {
	Status  domain.LoadingStatus    `json:"status"`
	Active  []domain.TrackedRequest `json:"active"`
	History []domain.TrackedRequest `json:"history"`
}

func (s *Server) handleRequests(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, requestsResponse{
		Status:  s.Loading.Status(),
		Active:  s.Loading.Active(),
		History: s.Loading.History(),
	})
}

func (s *Server) handleLoadingStream(w http.ResponseWriter, r *http.Request) {
	if s.Updates == nil {
		http.Error(w, "loading updates not available", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := startStream(w)
	if !ok {
		return
	}

	updates := s.Updates.Subscribe()
	defer s.Updates.Unsubscribe(updates)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	// current state first so the overlay never starts from a guess
	if err := writeEvent(w, "loading", s.Loading.Status()); err != nil {
		s.logger.Warn("loading stream write failed", zap.Error(err))
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case status, ok := <-updates:
			if !ok {
				return
			}
			if err := writeEvent(w, "loading", status); err != nil {
				s.logger.Warn("loading stream write failed", zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

func accountParam(r *http.Request) (domain.Account, error) {
	principal, sub, _ := strings.Cut(r.URL.Query().Get("account"), ".")
	return domain.ParseAccount(principal, sub)
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	portfolio, err := s.Fetcher.Fetch(r.Context(), account)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, portfolio)
	case errors.Is(err, domain.ErrInvalidAccount):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, balance.ErrAllLedgersFailed):
		s.logger.Warn("balances unavailable", zap.String("account", account.String()), zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		s.logger.Error("balance fetch failed", zap.String("account", account.String()), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// handleLatestBalance serves the last persisted snapshot of an account
// without touching the ledgers.
func (s *Server) handleLatestBalance(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		http.Error(w, "snapshot store not available", http.StatusServiceUnavailable)
		return
	}
	account, err := accountParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	snapshot, found, err := s.Store.Latest(account.String())
	switch {
	case err != nil:
		s.logger.Error("latest balance lookup failed", zap.String("account", account.String()), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	case !found:
		http.Error(w, "no snapshot for "+account.String(), http.StatusNotFound)
	default:
		writeJSON(w, http.StatusOK, snapshot)
	}
}

// handleBalanceStream replays persisted snapshots and then follows new ones.
// With ?account= only that account's snapshots are sent.
func (s *Server) handleBalanceStream(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		http.Error(w, "snapshot store not available", http.StatusServiceUnavailable)
		return
	}

	readAfter := s.Store.SnapshotsAfter
	if r.URL.Query().Has("account") {
		account, err := accountParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		readAfter = func(index uint64) ([]domain.BalanceSnapshotRecord, error) {
			return s.Store.AccountSnapshotsAfter(account.String(), index)
		}
	}

	flusher, ok := startStream(w)
	if !ok {
		return
	}

	var refreshed chan domain.Portfolio
	if s.Refreshes != nil {
		refreshed = s.Refreshes.Subscribe()
		defer s.Refreshes.Unsubscribe(refreshed)
	}

	// send a comment heartbeat every 30s so proxies keep connection
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(snapshotPollInterval)
	defer pollTicker.Stop()

	lastIndex := uint64(0)
	sendSnapshots := func() error {
		records, err := readAfter(lastIndex)
		if err != nil {
			return err
		}
		for _, record := range records {
			if err := writeEvent(w, "balance", record.Snapshot); err != nil {
				return err
			}
			flusher.Flush()
			lastIndex = record.Index
		}
		return nil
	}

	if err := sendSnapshots(); err != nil {
		s.logger.Error("balance stream initial load", zap.Error(err))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			if err := sendSnapshots(); err != nil {
				s.logger.Warn("balance stream poll err", zap.Error(err))
			}
		case _, ok := <-refreshed:
			if !ok {
				return
			}
			if err := sendSnapshots(); err != nil {
				s.logger.Warn("balance stream refresh err", zap.Error(err))
			}
		}
	}
}

func startStream(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return flusher, true
}

func writeEvent(w http.ResponseWriter, event string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

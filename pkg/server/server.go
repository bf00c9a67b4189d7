// ClawVault - custodial EVM wallet backend
// Package server exposes the wallet, swap, market-data and admin HTTP API.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sipeed/clawvault/pkg/config"
	"github.com/sipeed/clawvault/pkg/cryptobox"
	"github.com/sipeed/clawvault/pkg/features"
	"github.com/sipeed/clawvault/pkg/logger"
	"github.com/sipeed/clawvault/pkg/prices"
	"github.com/sipeed/clawvault/pkg/referral"
	"github.com/sipeed/clawvault/pkg/swap"
	"github.com/sipeed/clawvault/pkg/tokens"
	"github.com/sipeed/clawvault/pkg/wallet"
)

// Server wires the API handlers to their collaborators.
type Server struct {
	cfg      *config.Config
	store    *wallet.Store
	oracle   *prices.Oracle
	moralis  *prices.MoralisClient
	catalog  *tokens.Catalog
	resolver *tokens.Resolver
	engine   *swap.Engine
	ledger   *referral.Ledger
	payout   *referral.Payout // nil when signing is not configured
	flags    *features.Store

	http *http.Server
}

// Deps collects the server's collaborators.
type Deps struct {
	Config   *config.Config
	Store    *wallet.Store
	Oracle   *prices.Oracle
	Moralis  *prices.MoralisClient
	Catalog  *tokens.Catalog
	Resolver *tokens.Resolver
	Engine   *swap.Engine
	Ledger   *referral.Ledger
	Payout   *referral.Payout
	Flags    *features.Store
}

func New(d Deps) *Server {
	s := &Server{
		cfg:      d.Config,
		store:    d.Store,
		oracle:   d.Oracle,
		moralis:  d.Moralis,
		catalog:  d.Catalog,
		resolver: d.Resolver,
		engine:   d.Engine,
		ledger:   d.Ledger,
		payout:   d.Payout,
		flags:    d.Flags,
	}
	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", d.Config.Server.Host, d.Config.Server.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler builds the full route tree. Exposed for httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("POST /api/wallet/save-created", s.handleWalletSave)
	mux.HandleFunc("POST /api/wallet/import", s.handleWalletImport)
	mux.HandleFunc("POST /api/wallet/change-pin", s.handleChangePin)
	mux.HandleFunc("GET /api/wallet/info", s.handleWalletInfo)
	mux.HandleFunc("GET /api/wallet/list", s.admin(s.handleWalletList))
	mux.HandleFunc("DELETE /api/wallet", s.admin(s.handleWalletDelete))

	mux.HandleFunc("POST /api/swap/request", s.handleSwap)
	mux.HandleFunc("GET /api/quote", s.handleQuote)

	mux.HandleFunc("GET /api/prices", s.handlePrices)
	mux.HandleFunc("GET /api/prices/changes", s.handleChanges)
	mux.HandleFunc("GET /api/prices/ohlc", s.handleOHLC)
	mux.HandleFunc("GET /api/tokens", s.handleTokens)

	mux.HandleFunc("GET /api/referral/ledger", s.admin(s.handleLedger))
	mux.HandleFunc("POST /api/referral/payout", s.admin(s.handlePayout))
	mux.HandleFunc("POST /api/admin/tokens/refresh", s.admin(s.handleCatalogRefresh))
	mux.HandleFunc("GET /api/admin/tokens/catalog", s.admin(s.handleCatalogDump))

	mux.HandleFunc("GET /api/features", s.handleFeaturesGet)
	mux.HandleFunc("PUT /api/features", s.admin(s.handleFeaturesPut))

	return s.accessLog(mux)
}

// Run serves until ctx is cancelled, then drains connections.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.InfoCF("server", "HTTP API listening", map[string]any{
			"addr": s.http.Addr,
		})
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		reqID := uuid.NewString()
		start := time.Now()
		next.ServeHTTP(sw, r)
		logger.InfoCF("server", "Request", map[string]any{
			"id":     reqID,
			"method": r.Method,
			"path":   r.URL.Path,
			"status": sw.status,
			"ms":     time.Since(start).Milliseconds(),
		})
	})
}

// admin guards a handler with the shared-secret header. An unset token means
// the admin surface is disabled entirely.
func (s *Server) admin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := s.cfg.Admin.APIToken
		if token == "" {
			writeMessage(w, http.StatusUnauthorized, "admin access not configured")
			return
		}
		got := r.Header.Get("x-admin-token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			writeMessage(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"stub":   s.cfg.StubMode(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WarnCF("server", "Response encode failed", map[string]any{
			"error": err.Error(),
		})
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// writeError maps the error taxonomy onto HTTP codes: not-found 404,
// validation and authentication 400, everything else 500.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, wallet.ErrWalletNotFound):
		writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, wallet.ErrInvalidPIN),
		errors.Is(err, wallet.ErrInvalidPINFormat),
		errors.Is(err, wallet.ErrInvalidAmount),
		errors.Is(err, wallet.ErrAddressMismatch),
		errors.Is(err, wallet.ErrInvalidMnemonic),
		errors.Is(err, wallet.ErrUnsupportedToken),
		errors.Is(err, tokens.ErrUnsupportedToken),
		errors.Is(err, cryptobox.ErrAuthenticationFailed),
		errors.Is(err, referral.ErrInvalidWallet),
		errors.Is(err, referral.ErrSigningNotConfigured),
		errors.Is(err, errBadRequest):
		writeMessage(w, http.StatusBadRequest, err.Error())
	default:
		logger.ErrorCF("server", "Request failed", map[string]any{
			"error": err.Error(),
		})
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}

// errBadRequest covers malformed or missing request payloads.
var errBadRequest = errors.New("malformed request")

func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: bad JSON body", errBadRequest)
	}
	return nil
}

package server

import (
	"net/http"
	"time"

	"github.com/sipeed/clawvault/pkg/referral"
)

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	if wanted := r.URL.Query().Get("wallet"); wanted != "" {
		credits, err := s.ledger.Credits(wanted)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{wanted: credits})
		return
	}
	book, err := s.ledger.Read()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

type payoutRequest struct {
	Wallet string `json:"wallet,omitempty"`
	Token  string `json:"token,omitempty"`
	DryRun bool   `json:"dryRun"`
}

func (s *Server) handlePayout(w http.ResponseWriter, r *http.Request) {
	if s.payout == nil {
		writeError(w, referral.ErrSigningNotConfigured)
		return
	}
	var req payoutRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	report, err := s.payout.Run(r.Context(), referral.Options{
		ChainID: s.cfg.Chain.ChainID,
		Wallet:  req.Wallet,
		Token:   req.Token,
		Execute: !req.DryRun,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCatalogRefresh(w http.ResponseWriter, r *http.Request) {
	entries, err := s.catalog.Refresh(r.Context(), s.cfg.Chain.ChainID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "catalog refreshed",
		"count":   len(entries),
	})
}

func (s *Server) handleCatalogDump(w http.ResponseWriter, r *http.Request) {
	entries, err := s.catalog.Read(r.Context(), s.cfg.Chain.ChainID)
	if err != nil {
		writeError(w, err)
		return
	}
	updated := ""
	if t := s.catalog.UpdatedAt(s.cfg.Chain.ChainID); !t.IsZero() {
		updated = t.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"chainId":   s.cfg.Chain.ChainID,
		"tokens":    entries,
		"updatedAt": updated,
	})
}

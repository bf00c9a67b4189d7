package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/sipeed/clawvault/pkg/cryptobox"
	"github.com/sipeed/clawvault/pkg/logger"
	"github.com/sipeed/clawvault/pkg/wallet"
)

type saveCreatedRequest struct {
	UserID            string                `json:"userId"`
	WalletAddress     string                `json:"walletAddress"`
	EncryptedMnemonic string                `json:"encryptedMnemonic"`
	Tokens            []wallet.TokenBalance `json:"tokens,omitempty"`
}

func (s *Server) handleWalletSave(w http.ResponseWriter, r *http.Request) {
	var req saveCreatedRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.UserID == "" || req.WalletAddress == "" || req.EncryptedMnemonic == "" {
		writeError(w, fmt.Errorf("%w: userId, walletAddress and encryptedMnemonic are required", errBadRequest))
		return
	}

	rec, err := s.store.Upsert(req.UserID, &wallet.Record{
		WalletAddress:     req.WalletAddress,
		EncryptedMnemonic: req.EncryptedMnemonic,
		Tokens:            req.Tokens,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	logger.InfoCF("server", "Wallet saved", map[string]any{
		"uid":     req.UserID,
		"address": rec.WalletAddress,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"message":       "wallet saved",
		"walletAddress": rec.WalletAddress,
	})
}

type importRequest struct {
	UserID        string `json:"userId"`
	Mnemonic      string `json:"mnemonic"`
	PIN           string `json:"pin"`
	WalletAddress string `json:"walletAddress,omitempty"`
}

func (s *Server) handleWalletImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.UserID == "" || req.Mnemonic == "" {
		writeError(w, fmt.Errorf("%w: userId and mnemonic are required", errBadRequest))
		return
	}
	if !wallet.ValidatePIN(req.PIN) {
		writeError(w, wallet.ErrInvalidPINFormat)
		return
	}

	_, addr, err := wallet.DeriveKey(req.Mnemonic)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.WalletAddress != "" {
		if err := wallet.VerifyAddress(req.Mnemonic, req.WalletAddress); err != nil {
			writeError(w, err)
			return
		}
	}

	blob, err := cryptobox.Encrypt(wallet.NormalizeMnemonic(req.Mnemonic), req.PIN)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.store.Upsert(req.UserID, &wallet.Record{
		WalletAddress:     addr.Hex(),
		EncryptedMnemonic: blob,
	}); err != nil {
		writeError(w, err)
		return
	}

	logger.InfoCF("server", "Wallet imported", map[string]any{
		"uid":     req.UserID,
		"address": addr.Hex(),
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"message":       "wallet imported",
		"walletAddress": addr.Hex(),
	})
}

type changePinRequest struct {
	UserID string `json:"userId"`
	OldPIN string `json:"oldPin"`
	NewPIN string `json:"newPin"`
}

func (s *Server) handleChangePin(w http.ResponseWriter, r *http.Request) {
	var req changePinRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if !wallet.ValidatePIN(req.NewPIN) {
		writeError(w, wallet.ErrInvalidPINFormat)
		return
	}

	rec, err := s.store.Read(req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	mnemonic, err := cryptobox.Decrypt(rec.EncryptedMnemonic, req.OldPIN)
	if err != nil {
		writeError(w, wallet.ErrInvalidPIN)
		return
	}
	blob, err := cryptobox.Encrypt(mnemonic, req.NewPIN)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.store.Upsert(req.UserID, &wallet.Record{EncryptedMnemonic: blob}); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "PIN changed")
}

func (s *Server) handleWalletInfo(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("uid")
	if uid == "" {
		writeError(w, fmt.Errorf("%w: uid is required", errBadRequest))
		return
	}
	rec, err := s.store.Read(uid)
	if err != nil {
		writeError(w, err)
		return
	}

	s.refreshBalances(r, rec)
	s.enrichPrices(r, rec)
	rec.TotalUsd = rec.TotalUsdValue()

	if _, err := s.store.Upsert(uid, &wallet.Record{
		Tokens:   rec.Tokens,
		TotalUsd: rec.TotalUsd,
	}); err != nil {
		logger.WarnCF("server", "Wallet snapshot not persisted", map[string]any{
			"uid":   uid,
			"error": err.Error(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"walletAddress": rec.WalletAddress,
		"tokens":        rec.Tokens,
		"totalUsd":      rec.TotalUsd,
		"updatedAt":     rec.UpdatedAt,
	})
}

// refreshBalances swaps in live indexer balances when available. Any failure
// keeps the stored snapshot; the wallet view never blocks on the indexer.
func (s *Server) refreshBalances(r *http.Request, rec *wallet.Record) {
	if s.moralis == nil || !s.moralis.Configured() || rec.WalletAddress == "" {
		return
	}
	live, err := s.moralis.Balances(r.Context(), s.cfg.Chain.ChainID, rec.WalletAddress)
	if err != nil {
		logger.DebugCF("server", "Live balance refresh failed", map[string]any{
			"error": err.Error(),
		})
		return
	}
	tokens := make([]wallet.TokenBalance, 0, len(live))
	for _, t := range live {
		tokens = append(tokens, wallet.TokenBalance{
			Symbol:   t.Symbol,
			Name:     t.Name,
			Balance:  t.Balance,
			Decimals: t.Decimals,
			LogoUrl:  t.Logo,
		})
	}
	if len(tokens) > 0 {
		rec.Tokens = tokens
	}
}

func (s *Server) enrichPrices(r *http.Request, rec *wallet.Record) {
	if s.oracle == nil || len(rec.Tokens) == 0 {
		return
	}
	symbols := make([]string, 0, len(rec.Tokens))
	for _, t := range rec.Tokens {
		symbols = append(symbols, t.Symbol)
	}
	priced := s.oracle.Prices(r.Context(), symbols)
	for i := range rec.Tokens {
		if p, ok := priced[rec.Tokens[i].Symbol]; ok {
			rec.Tokens[i].PriceUsd = p
		}
	}
}

func (s *Server) handleWalletList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	uids, err := s.store.List(r.URL.Query().Get("q"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": uids, "count": len(uids)})
}

func (s *Server) handleWalletDelete(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("uid")
	if uid == "" {
		writeError(w, fmt.Errorf("%w: uid is required", errBadRequest))
		return
	}
	if !s.store.Delete(uid) {
		writeError(w, wallet.ErrWalletNotFound)
		return
	}
	writeMessage(w, http.StatusOK, "wallet deleted")
}

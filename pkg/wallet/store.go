package wallet

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sipeed/clawvault/pkg/logger"
)

// Store keeps one JSON file per user ID under <root>/wallets. Upserts hold a
// store-wide mutex across the read-modify-write so concurrent requests cannot
// drop each other's updates.
type Store struct {
	mu  sync.Mutex
	dir string
}

// NewStore creates the wallets directory under the data root.
func NewStore(dataRoot string) (*Store, error) {
	dir := filepath.Join(dataRoot, "wallets")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create wallets dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func sanitizeUID(uid string) string {
	var b strings.Builder
	for _, c := range uid {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '_', c == '-', c == '.':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func (s *Store) path(uid string) string {
	return filepath.Join(s.dir, sanitizeUID(uid)+".json")
}

// Read loads a wallet record, or ErrWalletNotFound.
func (s *Store) Read(uid string) (*Record, error) {
	raw, err := os.ReadFile(s.path(uid))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode wallet %s: %w", uid, err)
	}
	return &rec, nil
}

// Write persists a record via temp-file-then-rename.
func (s *Store) Write(uid string, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(uid, rec)
}

func (s *Store) writeLocked(uid string, rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	p := s.path(uid)
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

// Upsert merges update into the existing record (if any) and persists the
// result. Zero-value fields in update leave the stored value untouched.
func (s *Store) Upsert(uid string, update *Record) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	existing, err := s.Read(uid)
	if err != nil && err != ErrWalletNotFound {
		return nil, err
	}

	merged := &Record{UserID: uid, CreatedAt: now, UpdatedAt: now}
	if existing != nil {
		*merged = *existing
		merged.UpdatedAt = now
	}
	if update.WalletAddress != "" {
		merged.WalletAddress = update.WalletAddress
	}
	if update.EncryptedMnemonic != "" {
		merged.EncryptedMnemonic = update.EncryptedMnemonic
	}
	if update.Tokens != nil {
		merged.Tokens = update.Tokens
	}
	if update.TotalUsd != 0 {
		merged.TotalUsd = update.TotalUsd
	}
	if update.Metadata != nil {
		merged.Metadata = update.Metadata
	}
	if merged.Tokens == nil {
		merged.Tokens = []TokenBalance{}
	}

	if err := s.writeLocked(uid, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// List returns up to limit user IDs, optionally filtered by substring q.
func (s *Store) List(q string, limit int) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	q = strings.ToLower(strings.TrimSpace(q))
	uids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		uid := strings.TrimSuffix(name, ".json")
		if q != "" && !strings.Contains(strings.ToLower(uid), q) {
			continue
		}
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	if limit <= 0 {
		limit = 200
	}
	if limit > 5000 {
		limit = 5000
	}
	if len(uids) > limit {
		uids = uids[:limit]
	}
	return uids, nil
}

// Delete removes a wallet file. Returns false if none existed.
func (s *Store) Delete(uid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(uid)); err != nil {
		return false
	}
	logger.InfoCF("wallet", "Wallet deleted", map[string]any{"uid": uid})
	return true
}

func parseBalance(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

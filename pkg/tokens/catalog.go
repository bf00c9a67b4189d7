package tokens

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sipeed/clawvault/pkg/logger"
)

// Entry is one token catalog row. Address is either an on-chain address or a
// "BINANCE:<SYMBOL>" pseudo-address for exchange-sourced listings.
type Entry struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	Decimals int    `json:"decimals"`
	LogoURI  string `json:"logoURI,omitempty"`
}

type catalogFile struct {
	Tokens    []Entry `json:"tokens"`
	UpdatedAt string  `json:"updatedAt"`
	ChainID   int64   `json:"chainId"`
}

// Source fetches the wholesale token list for a chain.
type Source interface {
	FetchCatalog(ctx context.Context, chainID int64) ([]Entry, error)
}

type cachedCatalog struct {
	entries   []Entry
	fetchedAt time.Time
}

// Catalog persists per-chain token lists and serves them through an
// in-process TTL cache. A stale-but-present file is served immediately while
// a background refresh runs for the next caller.
type Catalog struct {
	dir    string
	ttl    time.Duration
	source Source

	mu         sync.Mutex
	cache      map[int64]*cachedCatalog
	refreshing map[int64]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCatalog creates the tokens directory under dataRoot.
func NewCatalog(dataRoot string, ttl time.Duration, source Source) (*Catalog, error) {
	dir := filepath.Join(dataRoot, "tokens")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create tokens dir: %w", err)
	}
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Catalog{
		dir:        dir,
		ttl:        ttl,
		source:     source,
		cache:      make(map[int64]*cachedCatalog),
		refreshing: make(map[int64]bool),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Close stops background refreshes and waits for them to finish.
func (c *Catalog) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *Catalog) path(chainID int64) string {
	return filepath.Join(c.dir, fmt.Sprintf("%d-tokens.json", chainID))
}

// Refresh pulls a fresh list from the source, persists it atomically and
// updates the cache.
func (c *Catalog) Refresh(ctx context.Context, chainID int64) ([]Entry, error) {
	entries, err := c.source.FetchCatalog(ctx, chainID)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog for chain %d: %w", chainID, err)
	}

	payload := catalogFile{
		Tokens:    entries,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
		ChainID:   chainID,
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, err
	}
	p := c.path(chainID)
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return nil, err
	}
	if err := os.Rename(tmp, p); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[chainID] = &cachedCatalog{entries: entries, fetchedAt: time.Now()}
	c.mu.Unlock()

	logger.InfoCF("tokens", "Catalog refreshed", map[string]any{
		"chainId": chainID,
		"count":   len(entries),
	})
	return entries, nil
}

// Read serves the catalog: fresh cache, then persisted file (kicking a
// background refresh if the file is stale), then a synchronous refresh.
func (c *Catalog) Read(ctx context.Context, chainID int64) ([]Entry, error) {
	c.mu.Lock()
	cached := c.cache[chainID]
	c.mu.Unlock()
	if cached != nil && time.Since(cached.fetchedAt) < c.ttl {
		return cached.entries, nil
	}

	entries, mtime, err := c.readFile(chainID)
	if err == nil {
		if time.Since(mtime) >= c.ttl {
			c.refreshInBackground(chainID)
		}
		c.mu.Lock()
		c.cache[chainID] = &cachedCatalog{entries: entries, fetchedAt: mtime}
		c.mu.Unlock()
		return entries, nil
	}

	return c.Refresh(ctx, chainID)
}

// UpdatedAt reports the persisted catalog's timestamp, or zero if absent.
func (c *Catalog) UpdatedAt(chainID int64) time.Time {
	info, err := os.Stat(c.path(chainID))
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

func (c *Catalog) readFile(chainID int64) ([]Entry, time.Time, error) {
	p := c.path(chainID)
	info, err := os.Stat(p)
	if err != nil {
		return nil, time.Time{}, err
	}
	raw, err := os.ReadFile(p)
	if err != nil {
		return nil, time.Time{}, err
	}
	var payload catalogFile
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode catalog %d: %w", chainID, err)
	}
	return payload.Tokens, info.ModTime(), nil
}

func (c *Catalog) refreshInBackground(chainID int64) {
	c.mu.Lock()
	if c.refreshing[chainID] {
		c.mu.Unlock()
		return
	}
	c.refreshing[chainID] = true
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			c.refreshing[chainID] = false
			c.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(c.ctx, 30*time.Second)
		defer cancel()
		if _, err := c.Refresh(ctx, chainID); err != nil {
			logger.WarnCF("tokens", "Background catalog refresh failed", map[string]any{
				"chainId": chainID,
				"error":   err.Error(),
			})
		}
	}()
}

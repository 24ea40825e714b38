package apps

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"smartcastbridge/internal/clock"
)

// CatalogURL is the vendor's published app catalog.
const CatalogURL = "http://scfs.vizio.com/appservice/vizio_apps_prod.json"

// RefreshInterval is how often the coordinator re-fetches the catalog.
const RefreshInterval = 24 * time.Hour

// Coordinator owns the process-wide catalog copy. One Refresh runs at a
// time; readers get an immutable snapshot via Apps.
type Coordinator struct {
	url    string
	http   *http.Client
	store  Store
	clock  clock.Clock
	logger *zap.Logger

	mu      sync.RWMutex
	catalog []App
}

// NewCoordinator creates a coordinator fetching from url (use CatalogURL)
// and persisting through store. store may be nil to run memory-only.
func NewCoordinator(url string, httpClient *http.Client, store Store, clk clock.Clock, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		url:    url,
		http:   httpClient,
		store:  store,
		clock:  clk,
		logger: logger.Named("apps"),
	}
}

// Apps returns the current catalog snapshot. The returned slice must not be
// modified; entities only read it.
func (c *Coordinator) Apps() []App {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.catalog
}

// Refresh fetches the catalog once, falling back to the stored copy and then
// to the previous in-memory copy. It only returns an error when no catalog
// exists from any source.
func (c *Coordinator) Refresh(ctx context.Context) error {
	catalog, err := c.fetch(ctx)
	if err == nil {
		c.setCatalog(catalog)
		if c.store != nil {
			if serr := c.store.Save(catalog); serr != nil {
				c.logger.Warn("failed to persist app catalog", zap.Error(serr))
			}
		}
		c.logger.Info("app catalog refreshed", zap.Int("apps", len(catalog)))
		return nil
	}
	c.logger.Warn("app catalog fetch failed", zap.Error(err))

	if c.store != nil {
		stored, serr := c.store.Load()
		if serr == nil {
			c.setCatalog(stored)
			c.logger.Info("using stored app catalog", zap.Int("apps", len(stored)))
			return nil
		}
		if serr != ErrNotStored {
			c.logger.Warn("failed to load stored app catalog", zap.Error(serr))
		}
	}

	if len(c.Apps()) > 0 {
		return nil
	}
	return fmt.Errorf("no app catalog available: %w", err)
}

// Run refreshes immediately and then on a fixed daily schedule until ctx is
// canceled. The initial failure is logged, not fatal; the bridge still
// controls power and volume without a catalog.
func (c *Coordinator) Run(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn("initial app catalog load failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.clock.After(RefreshInterval):
			if err := c.Refresh(ctx); err != nil {
				c.logger.Warn("scheduled app catalog refresh failed", zap.Error(err))
			}
		}
	}
}

func (c *Coordinator) setCatalog(catalog []App) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.catalog = catalog
}

func (c *Coordinator) fetch(ctx context.Context) ([]App, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch catalog: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var catalog []App
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return catalog, nil
}

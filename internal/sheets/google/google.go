// Package google stores transactions and settings in two tabs of a Google
// Sheets spreadsheet. It serves both as a primary backend and as the target
// of the backup mirror.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"bilancio/internal/cache"
	"bilancio/internal/core"
	"bilancio/internal/persistence"

	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const (
	DefaultTransactionsSheet = "Transactions"
	DefaultSettingsSheet     = "Settings"
	DefaultCacheTTL          = 30 * time.Second
)

type Config struct {
	SpreadsheetID      string
	TransactionsSheet  string
	SettingsSheet      string
	ServiceAccountJSON string
	ServiceAccountFile string
	CacheTTL           time.Duration
	// Manager, when set, sweeps the client's caches.
	Manager *cache.Manager
	// Options replace service-account auth entirely, e.g. to point the
	// client at a local endpoint.
	Options []goption.ClientOption
}

type Client struct {
	svc               *gsheet.Service
	spreadsheetID     string
	transactionsSheet string
	settingsSheet     string

	txnCache      *cache.LRUCache[[]core.Transaction]
	settingsCache *cache.LRUCache[core.Settings]
}

var _ persistence.Persistence = (*Client)(nil)

func New(ctx context.Context, cfg Config) (*Client, error) {
	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if cfg.TransactionsSheet == "" {
		cfg.TransactionsSheet = DefaultTransactionsSheet
	}
	if cfg.SettingsSheet == "" {
		cfg.SettingsSheet = DefaultSettingsSheet
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}

	opts := cfg.Options
	if len(opts) == 0 {
		creds, err := readCredentials(ctx, cfg.ServiceAccountJSON, cfg.ServiceAccountFile)
		if err != nil {
			return nil, err
		}
		opts = []goption.ClientOption{
			goption.WithCredentialsJSON(creds),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	c := &Client{
		svc:               svc,
		spreadsheetID:     spreadsheetID,
		transactionsSheet: cfg.TransactionsSheet,
		settingsSheet:     cfg.SettingsSheet,
		txnCache:          cache.NewLRUCache[[]core.Transaction](4, cfg.CacheTTL),
		settingsCache:     cache.NewLRUCache[core.Settings](4, cfg.CacheTTL),
	}
	if cfg.Manager != nil {
		cfg.Manager.Register(c.txnCache)
		cfg.Manager.Register(c.settingsCache)
	}
	return c, nil
}

// readCredentials returns service account JSON from the inline value, the
// file, or GOOGLE_APPLICATION_CREDENTIALS, in that order.
func readCredentials(ctx context.Context, inline, file string) ([]byte, error) {
	inline = strings.TrimSpace(inline)
	file = strings.TrimSpace(file)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		slog.DebugContext(ctx, "Using inline service account credentials")
		return []byte(inline), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		slog.DebugContext(ctx, "Read service account credentials", "path", file, "size", len(b))
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

func (c *Client) LoadTransactions(ctx context.Context) ([]core.Transaction, error) {
	key := c.cacheKey(c.transactionsSheet)
	if txns, ok := c.txnCache.Get(key); ok {
		return persistence.CloneTransactions(txns), nil
	}

	values, err := c.read(ctx, c.transactionsSheet+"!A:G")
	if err != nil {
		return nil, err
	}
	txns, skipped, err := parseTransactions(values)
	if err != nil {
		slog.WarnContext(ctx, "Transactions tab unreadable, starting empty",
			"sheet", c.transactionsSheet,
			"error", err)
	} else if skipped > 0 {
		slog.WarnContext(ctx, "Skipped undecodable transaction rows",
			"sheet", c.transactionsSheet,
			"count", skipped)
	}

	c.txnCache.Set(key, txns)
	return persistence.CloneTransactions(txns), nil
}

func (c *Client) SaveTransactions(ctx context.Context, txns []core.Transaction) error {
	defer c.txnCache.Delete(c.cacheKey(c.transactionsSheet))
	return c.replace(ctx, c.transactionsSheet, formatTransactions(txns))
}

func (c *Client) LoadSettings(ctx context.Context) (core.Settings, error) {
	key := c.cacheKey(c.settingsSheet)
	if s, ok := c.settingsCache.Get(key); ok {
		return s.Clone(), nil
	}

	values, err := c.read(ctx, c.settingsSheet+"!A:B")
	if err != nil {
		return core.Settings{}, err
	}
	s := parseSettings(values)
	c.settingsCache.Set(key, s)
	return s.Clone(), nil
}

func (c *Client) SaveSettings(ctx context.Context, s core.Settings) error {
	defer c.settingsCache.Delete(c.cacheKey(c.settingsSheet))
	return c.replace(ctx, c.settingsSheet, formatSettings(s))
}

// Invalidate drops every cached snapshot.
func (c *Client) Invalidate() {
	c.txnCache.Purge()
	c.settingsCache.Purge()
}

// read fetches a range. A missing tab reads as empty.
func (c *Client) read(ctx context.Context, rng string) ([][]interface{}, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusBadRequest {
			slog.WarnContext(ctx, "Sheet range not readable, treating as empty", "range", rng, "error", err)
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}

// replace clears the tab and writes rows from A1.
func (c *Client) replace(ctx context.Context, sheet string, rows [][]interface{}) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, sheet, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", sheet, err)
	}
	vr := &gsheet.ValueRange{Values: rows}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, sheet+"!A1", vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write %s: %w", sheet, err)
	}
	slog.DebugContext(ctx, "Sheet rewritten", "sheet", sheet, "rows", len(rows))
	return nil
}

func (c *Client) cacheKey(sheet string) string {
	return c.spreadsheetID + "/" + sheet
}

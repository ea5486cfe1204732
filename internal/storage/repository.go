package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/persistence"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

const timestampLayout = time.RFC3339Nano

type SQLiteRepository struct {
	db *sql.DB
}

var _ persistence.Persistence = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// Single writer; the mirror worker reads from another process.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// LoadTransactions returns every row in stored order. Rows that cannot be
// decoded are skipped with a warning.
func (r *SQLiteRepository) LoadTransactions(ctx context.Context) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, description, amount, category, date, created_at, updated_at
		FROM transactions
		ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	txns := []core.Transaction{}
	for rows.Next() {
		var (
			id, desc, amount, category, date, created, updated string
		)
		if err := rows.Scan(&id, &desc, &amount, &category, &date, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t, err := decodeRow(id, desc, amount, category, date, created, updated)
		if err != nil {
			slog.WarnContext(ctx, "Skipping undecodable transaction row",
				"id", id,
				"error", err)
			continue
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txns, nil
}

// SaveTransactions replaces every stored row with txns in one SQL transaction.
func (r *SQLiteRepository) SaveTransactions(ctx context.Context, txns []core.Transaction) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM transactions`); err != nil {
			return fmt.Errorf("clear transactions: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO transactions (id, position, description, amount, category, date, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for i, t := range txns {
			_, err := stmt.ExecContext(ctx,
				t.ID.String(),
				i,
				t.Description,
				t.Amount.String(),
				t.Category.String(),
				t.Date.String(),
				t.CreatedAt.UTC().Format(timestampLayout),
				t.UpdatedAt.UTC().Format(timestampLayout),
			)
			if err != nil {
				return fmt.Errorf("insert transaction %s: %w", t.ID, err)
			}
		}

		slog.DebugContext(ctx, "Transactions saved to SQLite", "count", len(txns))
		return nil
	})
}

// LoadSettings returns the stored settings or core.DefaultSettings when none
// were saved yet. An unreadable rates column falls back to the default rates.
func (r *SQLiteRepository) LoadSettings(ctx context.Context) (core.Settings, error) {
	settings := core.DefaultSettings()

	var (
		budgetCap decimal.NullDecimal
		rates     string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT budget_cap, currency_rates FROM settings WHERE id = 1`).
		Scan(&budgetCap, &rates)
	if errors.Is(err, sql.ErrNoRows) {
		return settings, nil
	}
	if err != nil {
		return core.Settings{}, fmt.Errorf("query settings: %w", err)
	}

	settings.BudgetCap = budgetCap
	var parsed map[string]decimal.Decimal
	if err := json.Unmarshal([]byte(rates), &parsed); err != nil {
		slog.WarnContext(ctx, "Stored currency rates are corrupt, using defaults", "error", err)
	} else {
		settings.CurrencyRates = parsed
	}
	return settings, nil
}

func (r *SQLiteRepository) SaveSettings(ctx context.Context, s core.Settings) error {
	rates, err := json.Marshal(s.CurrencyRates)
	if err != nil {
		return fmt.Errorf("encode currency rates: %w", err)
	}
	return r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO settings (id, budget_cap, currency_rates) VALUES (1, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				budget_cap = excluded.budget_cap,
				currency_rates = excluded.currency_rates`,
			s.BudgetCap, string(rates))
		if err != nil {
			return fmt.Errorf("upsert settings: %w", err)
		}
		return nil
	})
}

// CountTransactions returns the number of stored rows.
func (r *SQLiteRepository) CountTransactions(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

// Revision increases by one with every successful save of either kind.
func (r *SQLiteRepository) Revision(ctx context.Context) (int64, error) {
	var rev int64
	err := r.db.QueryRowContext(ctx, `SELECT revision FROM sync_state WHERE id = 1`).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read revision: %w", err)
	}
	return rev, nil
}

// withTx runs fn inside a transaction and bumps the revision when it succeeds.
func (r *SQLiteRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sync_state SET revision = revision + 1 WHERE id = 1`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("bump revision: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func decodeRow(id, desc, amount, category, date, created, updated string) (core.Transaction, error) {
	if id == "" {
		return core.Transaction{}, errors.New("empty id")
	}
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("amount %q: %w", amount, core.ErrInvalidAmount)
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Transaction{}, err
	}
	createdAt, err := time.Parse(timestampLayout, created)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("created_at: %w", err)
	}
	updatedAt, err := time.Parse(timestampLayout, updated)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("updated_at: %w", err)
	}
	return core.Transaction{
		ID:          core.TransactionID(id),
		Description: desc,
		Amount:      amt,
		Category:    core.Category(category),
		Date:        d,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}

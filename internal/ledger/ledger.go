// Package ledger keeps prepaid carrier balances in a local SQLite database
// and exposes each account as a debiting SMS gateway.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/smsgate/smsgate/internal/sms"
)

// timeLayout has fixed-width fractional seconds so timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry kinds.
const (
	KindTopUp  = "topup"
	KindCharge = "charge"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	provider TEXT PRIMARY KEY,
	balance  REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS journal (
	id         TEXT PRIMARY KEY,
	provider   TEXT NOT NULL,
	kind       TEXT NOT NULL,
	amount     REAL NOT NULL,
	phone      TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS journal_provider_created ON journal (provider, created_at);
`

// Entry is one journal row.
type Entry struct {
	ID        string
	Provider  sms.Provider
	Kind      string
	Amount    float64
	Phone     string
	CreatedAt time.Time
}

// Ledger is a SQLite-backed set of prepaid accounts, one per carrier.
type Ledger struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the ledger database at path. Use ":memory:"
// for a throwaway ledger.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger database: %w", err)
	}
	// A single connection serializes writers and keeps ":memory:" databases
	// from splitting across connections.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger schema: %w", err)
	}
	return &Ledger{db: db, logger: logger, now: time.Now}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// EnsureAccount creates the account for p with an opening balance. An
// existing account is left untouched.
func (l *Ledger) EnsureAccount(ctx context.Context, p sms.Provider, opening float64) error {
	if !(opening >= 0) || math.IsInf(opening, 1) {
		return fmt.Errorf("%w: opening balance must be non-negative and finite", sms.ErrInvalidArgument)
	}
	return l.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO accounts (provider, balance) VALUES (?, ?)`, p.String(), opening)
		if err != nil {
			return fmt.Errorf("creating account %s: %w", p, err)
		}
		if n, _ := res.RowsAffected(); n == 0 || opening == 0 {
			return nil
		}
		l.logger.Info("ledger account opened", "provider", p.String(), "balance", opening)
		return l.journal(ctx, tx, p, KindTopUp, opening, "")
	})
}

// TopUp adds amount to the account for p and returns the new balance.
func (l *Ledger) TopUp(ctx context.Context, p sms.Provider, amount float64) (float64, error) {
	if !(amount > 0) || math.IsInf(amount, 1) {
		return 0, fmt.Errorf("%w: top-up amount must be positive and finite", sms.ErrInvalidArgument)
	}
	var balance float64
	err := l.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO accounts (provider, balance) VALUES (?, ?)
			 ON CONFLICT (provider) DO UPDATE SET balance = balance + excluded.balance`,
			p.String(), amount)
		if err != nil {
			return fmt.Errorf("topping up %s: %w", p, err)
		}
		if err := l.journal(ctx, tx, p, KindTopUp, amount, ""); err != nil {
			return err
		}
		balance, err = balanceTx(ctx, tx, p)
		return err
	})
	return balance, err
}

// Balance returns the balance for p. A missing account has a zero balance.
func (l *Ledger) Balance(ctx context.Context, p sms.Provider) (float64, error) {
	var balance float64
	err := l.db.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE provider = ?`, p.String()).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading balance for %s: %w", p, err)
	}
	return balance, nil
}

// Charge debits amount from the account for p. It fails with
// *sms.InsufficientBalanceError without writing anything when the balance
// does not cover the amount.
func (l *Ledger) Charge(ctx context.Context, p sms.Provider, amount float64, phone string) (float64, error) {
	var remaining float64
	err := l.inTx(ctx, func(tx *sql.Tx) error {
		balance, err := balanceTx(ctx, tx, p)
		if err != nil {
			return err
		}
		if balance < amount {
			return &sms.InsufficientBalanceError{Balance: balance, Cost: amount}
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE accounts SET balance = balance - ? WHERE provider = ?`, amount, p.String()); err != nil {
			return fmt.Errorf("charging %s: %w", p, err)
		}
		if err := l.journal(ctx, tx, p, KindCharge, amount, phone); err != nil {
			return err
		}
		remaining = balance - amount
		return nil
	})
	return remaining, err
}

// Entries returns up to limit journal rows for p, newest first.
func (l *Ledger) Entries(ctx context.Context, p sms.Provider, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, kind, amount, phone, created_at FROM journal
		 WHERE provider = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, p.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e := Entry{Provider: p}
		var created string
		if err := rows.Scan(&e.ID, &e.Kind, &e.Amount, &e.Phone, &created); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}
		if e.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("parsing journal timestamp %q: %w", created, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (l *Ledger) journal(ctx context.Context, tx *sql.Tx, p sms.Provider, kind string, amount float64, phone string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO journal (id, provider, kind, amount, phone, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), p.String(), kind, amount, phone, l.now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("writing journal entry: %w", err)
	}
	return nil
}

func (l *Ledger) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning ledger transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing ledger transaction: %w", err)
	}
	return nil
}

func balanceTx(ctx context.Context, tx *sql.Tx, p sms.Provider) (float64, error) {
	var balance float64
	err := tx.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE provider = ?`, p.String()).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading balance for %s: %w", p, err)
	}
	return balance, nil
}

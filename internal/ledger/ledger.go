package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/tontine/internal/kvstore"
	"github.com/congo-pay/tontine/internal/logging"
	"github.com/congo-pay/tontine/internal/namespace"
)

var (
	// ErrInvalidAmount occurs when an amount is not a positive finite number.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientFunds occurs when a withdrawal exceeds the available balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNoNamespace indicates the ledger is not bound to an authenticated user.
	ErrNoNamespace = errors.New("no user namespace")
)

// Kind distinguishes ledger movements.
type Kind string

const (
	KindDeposit  Kind = "deposit"
	KindWithdraw Kind = "withdraw"
)

// Transaction is an immutable record of one balance movement.
type Transaction struct {
	ID          string          `json:"id"`
	Type        Kind            `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method"`
	Timestamp   time.Time       `json:"timestamp"`
	Description string          `json:"description"`
}

// Result captures the outcome of a deposit or withdrawal.
type Result struct {
	NewBalance  decimal.Decimal
	Transaction Transaction
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger used to report malformed persisted data.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithClock overrides the time source stamped on transactions.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithFormatter sets the display formatter used by FormatBalance.
func WithFormatter(f *Formatter) Option {
	return func(l *Ledger) { l.formatter = f }
}

// Ledger holds one user's balance and newest-first transaction history and
// mirrors every mutation to the store.
type Ledger struct {
	mu        sync.Mutex
	ns        namespace.Namespace
	store     kvstore.Store
	logger    *slog.Logger
	now       func() time.Time
	formatter *Formatter

	balance      decimal.Decimal
	transactions []Transaction
}

// New builds an empty ledger for the namespace. Call Load to rehydrate it.
func New(ns namespace.Namespace, store kvstore.Store, opts ...Option) *Ledger {
	l := &Ledger{
		ns:      ns,
		store:   store,
		logger:  logging.Discard(),
		now:     func() time.Time { return time.Now().UTC() },
		balance: decimal.Zero,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.formatter == nil {
		l.formatter = NewFormatter(DefaultLocale)
	}
	return l
}

// Load replaces the in-memory state with what the store holds for the
// namespace. Malformed values are logged and replaced by empty state.
func (l *Ledger) Load(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	current := make(map[string]string, 2)
	for _, field := range []string{kvstore.FieldBalance, kvstore.FieldTransactions} {
		raw, ok, err := l.store.Read(ctx, l.ns, field)
		if err != nil {
			return fmt.Errorf("read %s: %w", field, err)
		}
		if ok {
			current[field] = raw
		}
	}
	l.balance, l.transactions = l.decode(current)
	return nil
}

// decode parses persisted balance and transactions, logging and dropping
// malformed values.
func (l *Ledger) decode(current map[string]string) (decimal.Decimal, []Transaction) {
	balance := decimal.Zero
	if raw, ok := current[kvstore.FieldBalance]; ok {
		parsed, err := decimal.NewFromString(raw)
		switch {
		case err != nil:
			l.logger.Warn("malformed persisted balance", slog.String("namespace", l.ns.String()), slog.Any("error", err))
		case parsed.IsNegative():
			l.logger.Warn("negative persisted balance", slog.String("namespace", l.ns.String()), slog.String("balance", raw))
		default:
			balance = parsed
		}
	}

	var txs []Transaction
	if raw, ok := current[kvstore.FieldTransactions]; ok {
		if err := json.Unmarshal([]byte(raw), &txs); err != nil {
			l.logger.Warn("malformed persisted transactions", slog.String("namespace", l.ns.String()), slog.Any("error", err))
			txs = nil
		}
	}
	return balance, txs
}

// Deposit credits the balance and records a deposit transaction.
func (l *Ledger) Deposit(ctx context.Context, amount float64, method string) (Result, error) {
	return l.post(ctx, KindDeposit, amount, method)
}

// Withdraw debits the balance and records a withdraw transaction.
func (l *Ledger) Withdraw(ctx context.Context, amount float64, method string) (Result, error) {
	return l.post(ctx, KindWithdraw, amount, method)
}

// post re-reads the durable balance and history inside one store update so
// writers in other sessions or processes are never overwritten.
func (l *Ledger) post(ctx context.Context, kind Kind, amount float64, method string) (Result, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return Result{}, ErrInvalidAmount
	}
	if l.ns.IsZero() {
		return Result{}, ErrNoNamespace
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	amt := decimal.NewFromFloat(amount)
	tx := Transaction{
		ID:          uuid.NewString(),
		Type:        kind,
		Amount:      amt,
		Method:      method,
		Timestamp:   l.now(),
		Description: describe(kind, method),
	}

	var (
		stored    decimal.Decimal
		storedTxs []Transaction
		balance   decimal.Decimal
		txs       []Transaction
	)
	err := l.store.Update(ctx, l.ns, []string{kvstore.FieldBalance, kvstore.FieldTransactions}, func(current map[string]string) (kvstore.Mutation, error) {
		stored, storedTxs = l.decode(current)

		balance = stored
		switch kind {
		case KindDeposit:
			balance = balance.Add(amt)
		case KindWithdraw:
			if amt.GreaterThan(balance) {
				return kvstore.Mutation{}, ErrInsufficientFunds
			}
			balance = balance.Sub(amt)
		}

		txs = make([]Transaction, 0, len(storedTxs)+1)
		txs = append(txs, tx)
		txs = append(txs, storedTxs...)

		payload, err := json.Marshal(txs)
		if err != nil {
			return kvstore.Mutation{}, fmt.Errorf("encode transactions: %w", err)
		}
		return kvstore.Mutation{Set: map[string]string{
			kvstore.FieldBalance:      balance.String(),
			kvstore.FieldTransactions: string(payload),
		}}, nil
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			l.balance, l.transactions = stored, storedTxs
			return Result{}, err
		}
		return Result{}, fmt.Errorf("persist ledger: %w", err)
	}

	l.balance = balance
	l.transactions = txs
	return Result{NewBalance: balance, Transaction: tx}, nil
}

// Balance returns the current balance.
func (l *Ledger) Balance() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// Transactions returns a copy of the history, newest first.
func (l *Ledger) Transactions() []Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Transaction, len(l.transactions))
	copy(out, l.transactions)
	return out
}

// FormatBalance renders an amount with locale grouping for display.
func (l *Ledger) FormatBalance(amount decimal.Decimal) string {
	return l.formatter.Format(amount)
}

// ConvertBalance converts the current balance into the target currency.
func (l *Ledger) ConvertBalance(target string) decimal.Decimal {
	return Convert(l.Balance(), target)
}

func describe(kind Kind, method string) string {
	label := "Deposit"
	if kind == KindWithdraw {
		label = "Withdrawal"
	}
	if method == "" {
		return label
	}
	return label + " via " + method
}

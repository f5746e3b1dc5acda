package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/tontine/internal/ledger"
	"github.com/congo-pay/tontine/internal/metrics"
	"github.com/congo-pay/tontine/internal/notification"
	"github.com/congo-pay/tontine/internal/session"
)

// DefaultMethod labels movements that did not name a payment method.
const DefaultMethod = "Mobile Money"

const maxMethodLength = 64

var (
	// ErrOperatorDeclined occurs when the mobile-money operator refuses a movement.
	ErrOperatorDeclined = errors.New("operator declined the request")
	// ErrInvalidMethod occurs when the payment method label is too long.
	ErrInvalidMethod = errors.New("invalid payment method")
)

// Service coordinates operator calls with the caller's ledger.
type Service struct {
	collector Collector
	notifier  notification.Notifier
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewService prepares a wallet service. A nil collector approves everything.
func NewService(collector Collector, notifier notification.Notifier, m *metrics.Metrics, logger *slog.Logger) *Service {
	if collector == nil {
		collector = StaticCollector{}
	}
	return &Service{collector: collector, notifier: notifier, metrics: m, logger: logger}
}

// Movement is the domain outcome of a deposit or withdrawal.
type Movement struct {
	Result    ledger.Result
	Reference string
}

// Deposit collects funds from the operator, then credits the ledger.
func (s *Service) Deposit(ctx context.Context, sess *session.Session, amount float64, method string) (Movement, error) {
	method, err := s.validate(amount, method)
	if err != nil {
		s.metrics.LedgerOperation(string(ledger.KindDeposit), metrics.OutcomeRejected)
		return Movement{}, err
	}

	decision, err := s.collector.Collect(ctx, Collection{
		Namespace: sess.Namespace,
		Method:    method,
		Amount:    decimal.NewFromFloat(amount),
	})
	if err != nil {
		s.metrics.LedgerOperation(string(ledger.KindDeposit), metrics.OutcomeError)
		return Movement{}, fmt.Errorf("collect: %w", err)
	}
	if decision.Status != "approved" {
		s.metrics.LedgerOperation(string(ledger.KindDeposit), metrics.OutcomeRejected)
		return Movement{}, ErrOperatorDeclined
	}

	result, err := sess.Ledger.Deposit(ctx, amount, method)
	if err != nil {
		s.record(ledger.KindDeposit, err)
		return Movement{}, err
	}
	s.record(ledger.KindDeposit, nil)
	s.notify(ctx, sess, notification.KindDeposit, result)
	return Movement{Result: result, Reference: decision.Reference}, nil
}

// Withdraw checks the balance, disburses through the operator, then debits
// the ledger.
func (s *Service) Withdraw(ctx context.Context, sess *session.Session, amount float64, method string) (Movement, error) {
	method, err := s.validate(amount, method)
	if err != nil {
		s.metrics.LedgerOperation(string(ledger.KindWithdraw), metrics.OutcomeRejected)
		return Movement{}, err
	}
	amt := decimal.NewFromFloat(amount)
	if amt.GreaterThan(sess.Ledger.Balance()) {
		s.metrics.LedgerOperation(string(ledger.KindWithdraw), metrics.OutcomeRejected)
		return Movement{}, ledger.ErrInsufficientFunds
	}

	decision, err := s.collector.Disburse(ctx, Disbursement{
		Namespace: sess.Namespace,
		Method:    method,
		Amount:    amt,
	})
	if err != nil {
		s.metrics.LedgerOperation(string(ledger.KindWithdraw), metrics.OutcomeError)
		return Movement{}, fmt.Errorf("disburse: %w", err)
	}
	if decision.Status != "approved" {
		s.metrics.LedgerOperation(string(ledger.KindWithdraw), metrics.OutcomeRejected)
		return Movement{}, ErrOperatorDeclined
	}

	result, err := sess.Ledger.Withdraw(ctx, amount, method)
	if err != nil {
		s.record(ledger.KindWithdraw, err)
		// The operator already paid out; the reference is needed to reconcile.
		if s.logger != nil {
			s.logger.Error("withdrawal disbursed but not debited",
				slog.String("namespace", sess.Namespace.String()),
				slog.String("reference", decision.Reference),
				slog.String("amount", amt.String()),
				slog.Any("error", err))
		}
		return Movement{}, err
	}
	s.record(ledger.KindWithdraw, nil)
	s.notify(ctx, sess, notification.KindWithdraw, result)
	return Movement{Result: result, Reference: decision.Reference}, nil
}

func (s *Service) validate(amount float64, method string) (string, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return "", ledger.ErrInvalidAmount
	}
	method = strings.TrimSpace(method)
	if method == "" {
		method = DefaultMethod
	}
	if len(method) > maxMethodLength {
		return "", fmt.Errorf("%w: at most %d characters", ErrInvalidMethod, maxMethodLength)
	}
	return method, nil
}

func (s *Service) record(kind ledger.Kind, err error) {
	switch {
	case err == nil:
		s.metrics.LedgerOperation(string(kind), metrics.OutcomeOK)
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrInsufficientFunds), errors.Is(err, ledger.ErrNoNamespace):
		s.metrics.LedgerOperation(string(kind), metrics.OutcomeRejected)
	default:
		s.metrics.LedgerOperation(string(kind), metrics.OutcomeError)
	}
}

func (s *Service) notify(ctx context.Context, sess *session.Session, kind string, result ledger.Result) {
	if s.notifier == nil {
		return
	}
	body := fmt.Sprintf("%s: %s %s, solde %s %s",
		result.Transaction.Description,
		sess.Ledger.FormatBalance(result.Transaction.Amount), ledger.DefaultCurrency,
		sess.Ledger.FormatBalance(result.NewBalance), ledger.DefaultCurrency)
	msg := notification.Message{Kind: kind, Destination: sess.Namespace.String(), Body: body}
	if err := s.notifier.Send(ctx, msg); err != nil && s.logger != nil {
		s.logger.Warn("notification failed", slog.String("kind", kind), slog.Any("error", err))
	}
}

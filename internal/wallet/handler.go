package wallet

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/tontine/internal/ledger"
	"github.com/congo-pay/tontine/internal/middleware"
	"github.com/congo-pay/tontine/internal/session"
)

// Handler exposes wallet HTTP endpoints for the authenticated caller.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Summary returns the balance and transaction history.
func (h *Handler) Summary(c *fiber.Ctx) error {
	sess := middleware.SessionFrom(c)
	if sess == nil {
		return fiber.NewError(http.StatusUnauthorized, "no session")
	}
	balance := sess.Ledger.Balance()
	return c.Status(http.StatusOK).JSON(SummaryResponse{
		Balance:          balance,
		FormattedBalance: sess.Ledger.FormatBalance(balance),
		Currency:         ledger.DefaultCurrency,
		Transactions:     sess.Ledger.Transactions(),
		AsOf:             time.Now().UTC(),
	})
}

// Convert returns the balance in the requested display currency.
func (h *Handler) Convert(c *fiber.Ctx) error {
	sess := middleware.SessionFrom(c)
	if sess == nil {
		return fiber.NewError(http.StatusUnauthorized, "no session")
	}
	target := strings.ToUpper(c.Params("currency"))
	supported := false
	for _, cur := range ledger.SupportedCurrencies() {
		if cur == target {
			supported = true
			break
		}
	}
	if !supported {
		return fiber.NewError(http.StatusNotFound, "unsupported currency "+target)
	}
	amount := sess.Ledger.ConvertBalance(target)
	return c.Status(http.StatusOK).JSON(ConversionResponse{
		Currency:  target,
		Amount:    amount,
		Formatted: sess.Ledger.FormatBalance(amount),
		Source:    ledger.DefaultCurrency,
		Balance:   sess.Ledger.Balance(),
	})
}

// Deposit credits the caller's wallet.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	return h.move(c, h.service.Deposit)
}

// Withdraw debits the caller's wallet.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	return h.move(c, h.service.Withdraw)
}

func (h *Handler) move(c *fiber.Ctx, op func(ctx context.Context, sess *session.Session, amount float64, method string) (Movement, error)) error {
	sess := middleware.SessionFrom(c)
	if sess == nil {
		return fiber.NewError(http.StatusUnauthorized, "no session")
	}
	var req MovementRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	mv, err := op(c.UserContext(), sess, req.Amount, req.Method)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ErrInvalidMethod):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ledger.ErrInsufficientFunds):
			return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, ledger.ErrNoNamespace):
			return fiber.NewError(http.StatusUnauthorized, err.Error())
		case errors.Is(err, ErrOperatorDeclined):
			return fiber.NewError(http.StatusPaymentRequired, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.Status(http.StatusCreated).JSON(MovementResponse{
		Transaction:       mv.Result.Transaction,
		Balance:           mv.Result.NewBalance,
		FormattedBalance:  sess.Ledger.FormatBalance(mv.Result.NewBalance),
		Currency:          ledger.DefaultCurrency,
		OperatorReference: mv.Reference,
	})
}

// Package premium serves the plan and objective endpoints backed by the
// caller's entitlement tracker.
package premium

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/tontine/internal/entitlement"
	"github.com/congo-pay/tontine/internal/metrics"
	"github.com/congo-pay/tontine/internal/middleware"
	"github.com/congo-pay/tontine/internal/notification"
	"github.com/congo-pay/tontine/internal/session"
)

const maxMonths = 36

// Handler exposes premium and objective endpoints.
type Handler struct {
	notifier notification.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewHandler builds the handler. notifier and m may be nil.
func NewHandler(notifier notification.Notifier, m *metrics.Metrics, logger *slog.Logger) *Handler {
	return &Handler{notifier: notifier, metrics: m, logger: logger}
}

// Status returns the premium state with objective counts.
func (h *Handler) Status(c *fiber.Ctx) error {
	sess, err := current(c)
	if err != nil {
		return err
	}
	// CanCreate re-validates a lapsed expiry before the snapshot is taken.
	if _, err := sess.Entitlements.CanCreate(c.UserContext(), entitlement.KindCircle); err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(status(sess))
}

// Activate upgrades the caller to premium for the requested number of months.
func (h *Handler) Activate(c *fiber.Ctx) error {
	sess, err := current(c)
	if err != nil {
		return err
	}
	req := ActivateRequest{Months: 1}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	if req.Months > maxMonths {
		return fiber.NewError(http.StatusBadRequest, fmt.Sprintf("months must be at most %d", maxMonths))
	}

	expiry, err := sess.Entitlements.ActivatePremium(c.UserContext(), req.Months)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	h.metrics.PremiumActivated()
	if h.notifier != nil {
		msg := notification.Message{
			Kind:        notification.KindPremiumActivated,
			Destination: sess.Namespace.String(),
			Body:        "Premium actif jusqu'au " + expiry.Format("02/01/2006"),
		}
		if err := h.notifier.Send(c.UserContext(), msg); err != nil && h.logger != nil {
			h.logger.Warn("notification failed", slog.String("kind", msg.Kind), slog.Any("error", err))
		}
	}
	return c.Status(http.StatusOK).JSON(status(sess))
}

// CanCreate answers whether another objective of the requested kind may be added.
func (h *Handler) CanCreate(c *fiber.Ctx) error {
	sess, err := current(c)
	if err != nil {
		return err
	}
	kind, err := entitlement.ParseKind(c.Params("kind"))
	if err != nil {
		return mapError(err)
	}
	ok, err := sess.Entitlements.CanCreate(c.UserContext(), kind)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(CanCreateResponse{Kind: string(kind), CanCreate: ok})
}

// List returns the objectives of the requested kind.
func (h *Handler) List(c *fiber.Ctx) error {
	sess, err := current(c)
	if err != nil {
		return err
	}
	kind, err := entitlement.ParseKind(c.Params("kind"))
	if err != nil {
		return mapError(err)
	}
	items := sess.Entitlements.Objectives(kind)
	return c.Status(http.StatusOK).JSON(ObjectivesResponse{Kind: string(kind), Objectives: items, Count: len(items)})
}

// Add stores the request body as a new objective of the requested kind.
func (h *Handler) Add(c *fiber.Ctx) error {
	sess, err := current(c)
	if err != nil {
		return err
	}
	kind, err := entitlement.ParseKind(c.Params("kind"))
	if err != nil {
		return mapError(err)
	}

	body := append([]byte(nil), c.Body()...)
	if err := sess.Entitlements.Add(c.UserContext(), kind, body); err != nil {
		switch {
		case errors.Is(err, entitlement.ErrQuotaExceeded), errors.Is(err, entitlement.ErrInvalidObjective):
			h.metrics.ObjectiveCreation(string(kind), metrics.OutcomeRejected)
		default:
			h.metrics.ObjectiveCreation(string(kind), metrics.OutcomeError)
		}
		return mapError(err)
	}
	h.metrics.ObjectiveCreation(string(kind), metrics.OutcomeOK)

	items := sess.Entitlements.Objectives(kind)
	return c.Status(http.StatusCreated).JSON(ObjectivesResponse{Kind: string(kind), Objectives: items, Count: len(items)})
}

func current(c *fiber.Ctx) (*session.Session, error) {
	sess := middleware.SessionFrom(c)
	if sess == nil {
		return nil, fiber.NewError(http.StatusUnauthorized, "no session")
	}
	return sess, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, entitlement.ErrUnknownKind):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, entitlement.ErrQuotaExceeded):
		return fiber.NewError(http.StatusPaymentRequired, err.Error())
	case errors.Is(err, entitlement.ErrInvalidObjective):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}

func status(sess *session.Session) StatusResponse {
	snap := sess.Entitlements.Snapshot()
	counts := make(map[string]int, len(snap.Counts))
	for kind, n := range snap.Counts {
		counts[string(kind)] = n
	}
	resp := StatusResponse{
		Premium:  snap.Premium,
		DaysLeft: sess.Entitlements.PremiumDaysLeft(),
		Counts:   counts,
		Total:    snap.Total,
		Quota:    snap.Quota,
	}
	if snap.Premium {
		expiry := snap.Expiry
		resp.Expiry = &expiry
	}
	return resp
}

package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/tontine/internal/identity"
	"github.com/congo-pay/tontine/internal/namespace"
)

// Fiber locals populated by the JWT middleware.
const (
	LocalUserID       = "user_id"
	LocalTokenVersion = "token_version"
	LocalNamespace    = "namespace"
)

// SessionCloser drops the in-memory state of a namespace on logout.
type SessionCloser interface {
	Close(ns namespace.Namespace) bool
}

// Handler exposes auth endpoints for login/refresh/logout.
type Handler struct {
	ids      *identity.Service
	svc      *Service
	sessions SessionCloser
	logger   *slog.Logger
}

// NewHandler builds the auth handler. sessions may be nil.
func NewHandler(ids *identity.Service, svc *Service, sessions SessionCloser, logger *slog.Logger) *Handler {
	return &Handler{ids: ids, svc: svc, sessions: sessions, logger: logger}
}

type loginRequest struct {
	CountryCode string `json:"country_code"`
	Phone       string `json:"phone"`
	PIN         string `json:"pin"`
	DeviceID    string `json:"device_id"`
}

type loginResponse struct {
	UserID       string `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenVersion int    `json:"token_version"`
	Tier         string `json:"tier"`
}

// Login validates credentials and returns a token pair.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.ids.Authenticate(c.UserContext(), identity.Credentials{
		CountryCode: req.CountryCode,
		Phone:       req.Phone,
		PIN:         req.PIN,
		DeviceID:    req.DeviceID,
	})
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	}
	pair, err := h.svc.Login(user)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(loginResponse{
		UserID:       user.ID,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
		TokenVersion: user.TokenVersion,
		Tier:         user.Tier,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh issues a new access token using a valid refresh token.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	token, exp, err := h.svc.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"access_token": token, "expires_in": exp})
}

// Logout invalidates the caller's tokens and drops their in-memory session.
// Persisted state is kept so the next login rehydrates it.
func (h *Handler) Logout(c *fiber.Ctx) error {
	uid, _ := c.Locals(LocalUserID).(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	user, err := h.svc.Logout(c.UserContext(), uid)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return fiber.NewError(http.StatusUnauthorized, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	if h.sessions != nil {
		closed := h.sessions.Close(user.Namespace())
		if h.logger != nil {
			h.logger.Info("auth.logout completed", slog.String("user_id", user.ID), slog.Bool("session_closed", closed))
		}
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "logged_out"})
}

package identity

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes identity endpoints.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

type registerRequest struct {
	CountryCode string `json:"country_code"`
	Phone       string `json:"phone"`
	PIN         string `json:"pin"`
	DeviceID    string `json:"device_id"`
}

type userResponse struct {
	UserID      string `json:"user_id"`
	CountryCode string `json:"country_code"`
	Phone       string `json:"phone"`
	Tier        string `json:"tier"`
	DeviceID    string `json:"device_id"`
}

// Register handles user onboarding.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.service.Register(c.UserContext(), Credentials{
		CountryCode: req.CountryCode,
		Phone:       req.Phone,
		PIN:         req.PIN,
		DeviceID:    req.DeviceID,
	})
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			return fiber.NewError(http.StatusConflict, err.Error())
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if h.logger != nil {
		h.logger.Info("identity.register completed",
			slog.String("user_id", user.ID),
			slog.String("namespace", user.Namespace().String()),
			slog.Int("status", http.StatusCreated),
		)
	}
	return c.Status(http.StatusCreated).JSON(userResponse{
		UserID:      user.ID,
		CountryCode: user.CountryCode,
		Phone:       user.Phone,
		Tier:        user.Tier,
		DeviceID:    user.DeviceID,
	})
}

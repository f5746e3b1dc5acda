package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/tontine/internal/namespace"
)

const (
	tierZero = "tier0"
	tierOne  = "tier1"
)

var (
	// ErrInvalidPhone occurs when the country code or phone number is not numeric.
	ErrInvalidPhone = errors.New("country code and phone must be numeric")
	// ErrInvalidCredentials hides whether the phone or the PIN was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Service manages identity lifecycle.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a new identity service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

func normalizePhone(creds Credentials) (string, string, error) {
	cc, ok := namespace.Normalize(creds.CountryCode)
	if !ok {
		return "", "", ErrInvalidPhone
	}
	phone, ok := namespace.Normalize(creds.Phone)
	if !ok {
		return "", "", ErrInvalidPhone
	}
	return cc, phone, nil
}

// Register creates a new Tier0 user and stores a hashed PIN.
func (s *Service) Register(ctx context.Context, creds Credentials) (User, error) {
	cc, phone, err := normalizePhone(creds)
	if err != nil {
		return User{}, err
	}
	if len(creds.PIN) < 4 {
		return User{}, errors.New("PIN must be at least 4 digits")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.PIN), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:          uuid.New().String(),
		CountryCode: cc,
		Phone:       phone,
		Tier:        tierZero,
		PINHash:     hash,
		DeviceID:    creds.DeviceID,
		CreatedAt:   s.now(),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}

	return user, nil
}

// Authenticate verifies credentials and device binding.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (User, error) {
	cc, phone, err := normalizePhone(creds)
	if err != nil {
		return User{}, err
	}
	user, err := s.repo.FindByPhone(ctx, cc, phone)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}

	if err := bcrypt.CompareHashAndPassword(user.PINHash, []byte(creds.PIN)); err != nil {
		return User{}, ErrInvalidCredentials
	}

	if user.DeviceID == "" {
		if creds.DeviceID == "" {
			return User{}, errors.New("device binding required")
		}
		if err := s.repo.UpdateDevice(ctx, user.ID, creds.DeviceID); err != nil {
			return User{}, err
		}
		user.DeviceID = creds.DeviceID
	} else if creds.DeviceID != "" && user.DeviceID != creds.DeviceID {
		return User{}, errors.New("device mismatch")
	}

	if user.Tier == tierZero {
		user.Tier = tierOne
	}

	user.LastLogin = s.now()
	if err := s.repo.TouchLogin(ctx, user.ID, user.LastLogin); err != nil {
		return User{}, err
	}

	return user, nil
}

// Namespace returns the storage namespace owned by the user.
func (u User) Namespace() namespace.Namespace {
	ns, _ := namespace.Resolve(u.CountryCode, u.Phone)
	return ns
}

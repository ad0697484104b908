package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mealmatch/backend/internal/auth"
	"gorm.io/gorm"
)

var (
	// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
	ErrInvalidIdentity = errors.New("users: invalid identity")
	// ErrProfileNotFound indicates no profile exists for the requested user id.
	ErrProfileNotFound = errors.New("users: profile not found")
)

// ServiceConfig describes the dependencies required for profile management.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service manages user profiles keyed by the external identity subject.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	known sync.Map
}

// NewService constructs the profile service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, now: clock}, nil
}

// Ensure creates the profile row for verified claims when it does not exist
// yet and refreshes contact fields when it does. Called on every
// authenticated request, so known subjects skip the write path.
func (s *Service) Ensure(ctx context.Context, claims auth.IdentityClaims) (string, error) {
	subject := normalize(claims.Subject)
	if subject == "" {
		return "", ErrInvalidIdentity
	}

	if _, ok := s.known.Load(subject); ok {
		return subject, nil
	}

	var profile Profile
	err := s.db.WithContext(ctx).
		Where("user_id = ?", subject).
		First(&profile).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		profile = Profile{
			UserID:     subject,
			Username:   usernameFromEmail(claims.Email),
			Email:      normalize(claims.Email),
			LastSeenAt: s.now(),
		}
		if err := s.db.WithContext(ctx).Create(&profile).Error; err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	} else {
		updates := map[string]interface{}{"last_seen_at": s.now()}
		if email := normalize(claims.Email); email != "" && email != profile.Email {
			updates["email"] = email
		}
		_ = s.db.WithContext(ctx).Model(&Profile{}).
			Where("user_id = ?", subject).
			Updates(updates).
			Error
	}

	s.known.Store(subject, struct{}{})
	return subject, nil
}

// Get loads the full profile for a user id.
func (s *Service) Get(ctx context.Context, userID string) (Profile, error) {
	var profile Profile
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&profile).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, userID)
	}
	if err != nil {
		return Profile{}, err
	}
	return profile, nil
}

// Public loads the public projection of a user's profile.
func (s *Service) Public(ctx context.Context, userID string) (PublicProfile, error) {
	profile, err := s.Get(ctx, userID)
	if err != nil {
		return PublicProfile{}, err
	}
	return profile.Public(), nil
}

func usernameFromEmail(email string) string {
	email = normalize(email)
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}

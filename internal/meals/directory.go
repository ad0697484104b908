package meals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mealmatch/backend/internal/ids"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrMealNotFound indicates no meal exists for the requested id.
	ErrMealNotFound = errors.New("meals: meal not found")
	// ErrNoMealsPublished indicates a user has never published a meal.
	ErrNoMealsPublished = errors.New("meals: no meals published")
	// ErrInvalidMeal indicates the publish input is missing required fields.
	ErrInvalidMeal = errors.New("meals: invalid meal")
)

// DirectoryConfig describes the dependencies of the meal directory.
type DirectoryConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
}

// Directory owns meal records and answers the narrow ownership questions the
// match core asks: who owns a meal, and what is a user's latest meal.
type Directory struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	logger     *zap.Logger
}

// NewDirectory constructs the meal directory.
func NewDirectory(cfg DirectoryConfig) (*Directory, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("meals: database connection required")
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("meals: id provider required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{db: cfg.Database, clock: clock, idProvider: cfg.IDProvider, logger: logger}, nil
}

// PublishInput carries the caller-supplied fields of a new meal.
type PublishInput struct {
	Name        string
	Description string
	ImageURL    string
}

// Publish inserts a new meal owned by the given user.
func (d *Directory) Publish(ctx context.Context, ownerID string, input PublishInput) (Meal, error) {
	name := strings.TrimSpace(input.Name)
	if ownerID == "" || name == "" {
		return Meal{}, fmt.Errorf("%w: owner and name are required", ErrInvalidMeal)
	}

	id, err := d.idProvider.NewID()
	if err != nil {
		return Meal{}, err
	}

	meal := Meal{
		ID:          id,
		OwnerID:     ownerID,
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		ImageURL:    strings.TrimSpace(input.ImageURL),
		CreatedAt:   d.clock().UTC(),
	}
	if err := d.db.WithContext(ctx).Create(&meal).Error; err != nil {
		return Meal{}, err
	}

	d.logger.Info("meal published",
		zap.String("meal_id", meal.ID),
		zap.String("owner_id", ownerID))
	return meal, nil
}

// Get loads a meal by id.
func (d *Directory) Get(ctx context.Context, mealID string) (Meal, error) {
	var meal Meal
	err := d.db.WithContext(ctx).Where("id = ?", mealID).First(&meal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Meal{}, fmt.Errorf("%w: %s", ErrMealNotFound, mealID)
	}
	if err != nil {
		return Meal{}, err
	}
	return meal, nil
}

// Owner returns the owning user id for a meal.
func (d *Directory) Owner(ctx context.Context, mealID string) (string, error) {
	meal, err := d.Get(ctx, mealID)
	if err != nil {
		return "", err
	}
	return meal.OwnerID, nil
}

// LatestByOwner returns the most recently published meal of a user.
func (d *Directory) LatestByOwner(ctx context.Context, ownerID string) (Meal, error) {
	var meal Meal
	err := d.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		First(&meal).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Meal{}, fmt.Errorf("%w: owner %s", ErrNoMealsPublished, ownerID)
	}
	if err != nil {
		return Meal{}, err
	}
	return meal, nil
}

// ListByOwner returns every meal published by a user, newest first.
func (d *Directory) ListByOwner(ctx context.Context, ownerID string) ([]Meal, error) {
	var result []Meal
	err := d.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&result).
		Error
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListAll returns every published meal, newest first. Serves the public
// read-only listing.
func (d *Directory) ListAll(ctx context.Context) ([]Meal, error) {
	var result []Meal
	err := d.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&result).
		Error
	if err != nil {
		return nil, err
	}
	return result, nil
}

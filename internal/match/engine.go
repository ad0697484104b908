package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mealmatch/backend/internal/chat"
	"github.com/mealmatch/backend/internal/ids"
	"github.com/mealmatch/backend/internal/meals"
	"github.com/mealmatch/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrInvalidRequest indicates required request fields are missing.
	ErrInvalidRequest = errors.New("match: invalid request")
	// ErrNoOwnMeal indicates the requester has never published a meal.
	ErrNoOwnMeal = errors.New("match: requester has no published meal")
	// ErrRequestNotFound indicates the request is absent, addressed to someone
	// else, or already decided. Callers cannot distinguish the three.
	ErrRequestNotFound = errors.New("match: request not found")
	// ErrRateLimited indicates the acting user exhausted the accept window.
	ErrRateLimited = errors.New("match: accept rate limit reached")
	// ErrMatchRoomMissing indicates a match exists for the request but its
	// chat room does not. The pairing needs manual reconciliation; retrying
	// the accept would create a second match for the same request.
	ErrMatchRoomMissing = errors.New("match: match exists without chat room")
)

// MealDirectory is the slice of the meal directory the engine depends on.
type MealDirectory interface {
	LatestByOwner(ctx context.Context, ownerID string) (meals.Meal, error)
	Get(ctx context.Context, mealID string) (meals.Meal, error)
}

// ProfileSource resolves public profile projections for request listings.
type ProfileSource interface {
	Public(ctx context.Context, userID string) (users.PublicProfile, error)
}

// EngineConfig describes the dependencies of the match lifecycle engine.
type EngineConfig struct {
	Database     *gorm.DB
	Clock        func() time.Time
	IDProvider   ids.Provider
	Meals        MealDirectory
	Profiles     ProfileSource
	AcceptWindow time.Duration
	Logger       *zap.Logger
}

const defaultAcceptWindow = 24 * time.Hour

// Engine owns every transition of the request lifecycle. Requests, matches,
// rooms, and the acting user's limiter state are only ever mutated through
// its operations, each inside a single transaction.
type Engine struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	meals      MealDirectory
	profiles   ProfileSource
	limiter    acceptLimiter
	logger     *zap.Logger
}

// NewEngine constructs the match lifecycle engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("match: database connection required")
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("match: id provider required")
	}
	if cfg.Meals == nil {
		return nil, fmt.Errorf("match: meal directory required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	window := cfg.AcceptWindow
	if window <= 0 {
		window = defaultAcceptWindow
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		meals:      cfg.Meals,
		profiles:   cfg.Profiles,
		limiter:    acceptLimiter{window: window},
		logger:     logger,
	}, nil
}

// SendRequest records a proposal from one user against another user's meal.
// The requester's latest meal is snapshotted as the offered side. Duplicate
// submission while a matching request is still pending returns the existing
// row unchanged.
func (e *Engine) SendRequest(ctx context.Context, fromUserID, toUserID, targetMealID string) (Request, error) {
	if fromUserID == "" || toUserID == "" || targetMealID == "" {
		return Request{}, fmt.Errorf("%w: target user and meal are required", ErrInvalidRequest)
	}

	senderMeal, err := e.meals.LatestByOwner(ctx, fromUserID)
	if err != nil {
		if errors.Is(err, meals.ErrNoMealsPublished) {
			return Request{}, fmt.Errorf("%w: user %s", ErrNoOwnMeal, fromUserID)
		}
		return Request{}, err
	}

	var result Request
	txErr := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Request
		err := tx.
			Where("from_user_id = ? AND to_user_id = ? AND meal_id = ? AND status = ?",
				fromUserID, toUserID, targetMealID, StatusPending).
			First(&existing).
			Error
		if err == nil {
			result = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		id, err := e.idProvider.NewID()
		if err != nil {
			return err
		}
		result = Request{
			ID:           id,
			FromUserID:   fromUserID,
			ToUserID:     toUserID,
			MealID:       targetMealID,
			SenderMealID: senderMeal.ID,
			Status:       StatusPending,
			CreatedAt:    e.clock().UTC(),
		}
		return tx.Create(&result).Error
	})
	if txErr != nil {
		return Request{}, txErr
	}

	e.logger.Info("match request recorded",
		zap.String("request_id", result.ID),
		zap.String("from_user_id", fromUserID),
		zap.String("to_user_id", toUserID),
		zap.String("meal_id", targetMealID))
	return result, nil
}

// Acceptance is the result of a successful accept transition.
type Acceptance struct {
	Match Match
	Room  chat.Room
}

// Accept turns a pending request into a match plus its chat room. The whole
// transition commits or fails as one unit: the request classification, the
// limiter check, the status flip, the rejection sweep of every other pending
// request targeting the acting user, the match and room inserts, and the
// limiter advance. The acting user's profile row is locked first so
// concurrent accepts serialize on it. The request is classified before the
// limiter is consulted, so an absent or already decided request reads the
// same whether or not the caller is inside their accept window; the limiter
// still guards every path that writes.
func (e *Engine) Accept(ctx context.Context, actingUserID, requestID string) (Acceptance, error) {
	if actingUserID == "" || requestID == "" {
		return Acceptance{}, fmt.Errorf("%w: request id is required", ErrInvalidRequest)
	}

	var acceptance Acceptance
	now := e.clock().UTC()

	txErr := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var profile users.Profile
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", actingUserID).
			First(&profile).
			Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", users.ErrProfileNotFound, actingUserID)
		}
		if err != nil {
			return err
		}

		var request Request
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND to_user_id = ?", requestID, actingUserID).
			First(&request).
			Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrRequestNotFound, requestID)
		}
		if err != nil {
			return err
		}
		if request.Status != StatusPending {
			return e.terminalRequestError(tx, request)
		}

		if !e.limiter.allow(profile, now) {
			return fmt.Errorf("%w: user %s", ErrRateLimited, actingUserID)
		}

		if err := tx.Model(&Request{}).
			Where("id = ?", request.ID).
			Update("status", StatusAccepted).
			Error; err != nil {
			return err
		}

		// Winner-take-one: accepting this suitor closes out every other
		// pending request targeting the acting user.
		if err := tx.Model(&Request{}).
			Where("to_user_id = ? AND id <> ? AND status = ?", actingUserID, request.ID, StatusPending).
			Update("status", StatusRejected).
			Error; err != nil {
			return err
		}

		matchID, err := e.idProvider.NewID()
		if err != nil {
			return err
		}
		created := Match{
			ID:          matchID,
			User1ID:     request.FromUserID,
			User2ID:     request.ToUserID,
			User1MealID: request.SenderMealID,
			User2MealID: request.MealID,
			RequestID:   request.ID,
			CreatedAt:   now,
		}
		if err := tx.Create(&created).Error; err != nil {
			return err
		}

		roomID, err := e.idProvider.NewID()
		if err != nil {
			return err
		}
		room := chat.Room{
			ID:        roomID,
			MatchID:   created.ID,
			User1ID:   created.User1ID,
			User2ID:   created.User2ID,
			IsLocked:  false,
			CreatedAt: now,
		}
		if err := tx.Create(&room).Error; err != nil {
			return err
		}

		if err := tx.Model(&users.Profile{}).
			Where("user_id = ?", actingUserID).
			Update("last_accepted_at", now).
			Error; err != nil {
			return err
		}

		acceptance = Acceptance{Match: created, Room: room}
		return nil
	})
	if txErr != nil {
		if errors.Is(txErr, ErrMatchRoomMissing) {
			e.logger.Error("accept found match without room, manual reconciliation required",
				zap.String("request_id", requestID),
				zap.String("acting_user_id", actingUserID))
		}
		return Acceptance{}, txErr
	}

	e.logger.Info("match accepted",
		zap.String("request_id", requestID),
		zap.String("match_id", acceptance.Match.ID),
		zap.String("room_id", acceptance.Room.ID))
	return acceptance, nil
}

// terminalRequestError classifies an accept against an already decided
// request. A rejected request simply reads as gone. An accepted request
// should have a match and a room; when the room is missing the pairing is
// half materialized and the caller must not retry.
func (e *Engine) terminalRequestError(tx *gorm.DB, request Request) error {
	if request.Status != StatusAccepted {
		return fmt.Errorf("%w: %s", ErrRequestNotFound, request.ID)
	}

	var existing Match
	err := tx.Where("request_id = ?", request.ID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: request %s accepted but never materialized", ErrMatchRoomMissing, request.ID)
	}
	if err != nil {
		return err
	}

	var roomCount int64
	if err := tx.Model(&chat.Room{}).Where("match_id = ?", existing.ID).Count(&roomCount).Error; err != nil {
		return err
	}
	if roomCount == 0 {
		return fmt.Errorf("%w: match %s", ErrMatchRoomMissing, existing.ID)
	}
	return fmt.Errorf("%w: %s", ErrRequestNotFound, request.ID)
}

// Reject closes a pending request addressed to the acting user. Absent,
// foreign, and already decided requests all fail identically.
func (e *Engine) Reject(ctx context.Context, actingUserID, requestID string) error {
	if actingUserID == "" || requestID == "" {
		return fmt.Errorf("%w: request id is required", ErrInvalidRequest)
	}

	result := e.db.WithContext(ctx).Model(&Request{}).
		Where("id = ? AND to_user_id = ? AND status = ?", requestID, actingUserID, StatusPending).
		Update("status", StatusRejected)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRequestNotFound, requestID)
	}

	e.logger.Info("match request rejected",
		zap.String("request_id", requestID),
		zap.String("acting_user_id", actingUserID))
	return nil
}

// MatchMeals resolves the meal attribution of a match for the conversation
// read path. The match's own meal columns are authoritative.
func (e *Engine) MatchMeals(ctx context.Context, matchID string) (chat.MatchMeals, error) {
	var m Match
	err := e.db.WithContext(ctx).Where("id = ?", matchID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return chat.MatchMeals{}, fmt.Errorf("match: match %s not found", matchID)
	}
	if err != nil {
		return chat.MatchMeals{}, err
	}
	return chat.MatchMeals{
		User1ID:     m.User1ID,
		User2ID:     m.User2ID,
		User1MealID: m.User1MealID,
		User2MealID: m.User2MealID,
	}, nil
}

// AcceptedCount counts the accepted requests a user participated in, for the
// profile overview.
func (e *Engine) AcceptedCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := e.db.WithContext(ctx).Model(&Request{}).
		Where("(from_user_id = ? OR to_user_id = ?) AND status = ?", userID, userID, StatusAccepted).
		Count(&count).
		Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

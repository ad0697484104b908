package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mealmatch/backend/internal/ids"
	"github.com/mealmatch/backend/internal/meals"
	"github.com/mealmatch/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrEmptyMessage indicates the message body is empty after trimming.
	ErrEmptyMessage = errors.New("chat: empty message")
	// ErrRoomNotFound indicates the room is absent or the caller is not a
	// participant. Callers cannot distinguish the two.
	ErrRoomNotFound = errors.New("chat: room not found")
	// ErrRoomLocked indicates the room is frozen to new messages.
	ErrRoomLocked = errors.New("chat: room locked")
)

// MatchMeals is the meal attribution of a match, sided the same way as the
// match record itself.
type MatchMeals struct {
	User1ID     string
	User2ID     string
	User1MealID string
	User2MealID string
}

// MatchSource resolves the meal attribution of the match backing a room.
type MatchSource interface {
	MatchMeals(ctx context.Context, matchID string) (MatchMeals, error)
}

// ProfileSource resolves public profile projections for participants.
type ProfileSource interface {
	Public(ctx context.Context, userID string) (users.PublicProfile, error)
}

// MealSource resolves meal snapshots for the conversation context.
type MealSource interface {
	Get(ctx context.Context, mealID string) (meals.Meal, error)
}

// ServiceConfig describes the dependencies of the conversation store.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Matches    MatchSource
	Profiles   ProfileSource
	Meals      MealSource
	Logger     *zap.Logger
}

// Service owns chat rooms and their append-only message logs, and serves the
// polling read path clients use in place of a live connection.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	matches    MatchSource
	profiles   ProfileSource
	meals      MealSource
	logger     *zap.Logger
}

// NewService constructs the conversation store.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("chat: database connection required")
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("chat: id provider required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		matches:    cfg.Matches,
		profiles:   cfg.Profiles,
		meals:      cfg.Meals,
		logger:     logger,
	}, nil
}

// SendMessage appends a message to a room's log. The next per-room sequence
// number is assigned with the room row locked, so Seq is gapless and
// strictly increasing within the room.
func (s *Service) SendMessage(ctx context.Context, actingUserID, roomID, body string) (Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Message{}, ErrEmptyMessage
	}

	var message Message
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room Room
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", roomID).
			First(&room).
			Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
		}
		if err != nil {
			return err
		}
		if !room.Participant(actingUserID) {
			return fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
		}
		if room.IsLocked {
			return fmt.Errorf("%w: %s", ErrRoomLocked, roomID)
		}

		seq := room.Seq + 1
		if err := tx.Model(&Room{}).
			Where("id = ?", room.ID).
			Update("seq", seq).
			Error; err != nil {
			return err
		}

		id, err := s.idProvider.NewID()
		if err != nil {
			return err
		}
		message = Message{
			ID:        id,
			RoomID:    room.ID,
			SenderID:  actingUserID,
			Body:      body,
			Seq:       seq,
			CreatedAt: s.clock().UTC(),
		}
		return tx.Create(&message).Error
	})
	if txErr != nil {
		return Message{}, txErr
	}

	s.logger.Debug("chat message appended",
		zap.String("room_id", roomID),
		zap.String("message_id", message.ID),
		zap.Int64("seq", message.Seq))
	return message, nil
}

// MatchContext is the meal attribution of a room's match, sided relative to
// the asking participant.
type MatchContext struct {
	MyMeal    *meals.Meal `json:"my_meal,omitempty"`
	TheirMeal *meals.Meal `json:"their_meal,omitempty"`
}

// RoomView is the full conversation state returned to a participant.
type RoomView struct {
	Room     Room                `json:"room"`
	Locked   bool                `json:"locked"`
	Other    users.PublicProfile `json:"other_user"`
	Context  MatchContext        `json:"match_context"`
	Messages []Message           `json:"messages"`
}

// Room returns the room, the other participant's public profile, the meal
// context of the backing match, and the ordered message history. A locked
// room still answers, but with its history hidden.
func (s *Service) Room(ctx context.Context, actingUserID, roomID string) (RoomView, error) {
	room, err := s.authorizedRoom(ctx, actingUserID, roomID)
	if err != nil {
		return RoomView{}, err
	}

	view := RoomView{
		Room:     room,
		Locked:   room.IsLocked,
		Messages: []Message{},
	}

	view.Other, err = s.publicOrBare(ctx, room.Other(actingUserID))
	if err != nil {
		return RoomView{}, err
	}

	view.Context, err = s.matchContext(ctx, room, actingUserID)
	if err != nil {
		return RoomView{}, err
	}

	if room.IsLocked {
		return view, nil
	}

	err = s.db.WithContext(ctx).
		Where("room_id = ?", room.ID).
		Order("seq ASC").
		Find(&view.Messages).
		Error
	if err != nil {
		return RoomView{}, err
	}
	return view, nil
}

// MessagesAfter is the polling primitive: every message with a sequence
// number strictly greater than the cursor, in order. Polling at the head
// yields an empty result, not an error. A locked room serves no messages.
func (s *Service) MessagesAfter(ctx context.Context, actingUserID, roomID string, afterSeq int64) ([]Message, error) {
	room, err := s.authorizedRoom(ctx, actingUserID, roomID)
	if err != nil {
		return nil, err
	}
	if room.IsLocked {
		return []Message{}, nil
	}

	result := []Message{}
	err = s.db.WithContext(ctx).
		Where("room_id = ? AND seq > ?", room.ID, afterSeq).
		Order("seq ASC").
		Find(&result).
		Error
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RoomSummary is one entry of a user's conversation list.
type RoomSummary struct {
	RoomID      string              `json:"room_id"`
	MatchID     string              `json:"match_id"`
	Locked      bool                `json:"locked"`
	CreatedAt   time.Time           `json:"created_at"`
	Other       users.PublicProfile `json:"other_user"`
	LastMessage *Message            `json:"last_message,omitempty"`
}

// ListRooms returns a summary of every room the user participates in,
// ordered by most recent activity; rooms without messages sort last.
func (s *Service) ListRooms(ctx context.Context, actingUserID string) ([]RoomSummary, error) {
	var rooms []Room
	err := s.db.WithContext(ctx).
		Where("user1_id = ? OR user2_id = ?", actingUserID, actingUserID).
		Find(&rooms).
		Error
	if err != nil {
		return nil, err
	}

	summaries := make([]RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summary := RoomSummary{
			RoomID:    room.ID,
			MatchID:   room.MatchID,
			Locked:    room.IsLocked,
			CreatedAt: room.CreatedAt,
		}
		summary.Other, err = s.publicOrBare(ctx, room.Other(actingUserID))
		if err != nil {
			return nil, err
		}

		var last Message
		err = s.db.WithContext(ctx).
			Where("room_id = ?", room.ID).
			Order("seq DESC").
			First(&last).
			Error
		if err == nil {
			lastCopy := last
			summary.LastMessage = &lastCopy
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		summaries = append(summaries, summary)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		left, right := summaries[i].LastMessage, summaries[j].LastMessage
		switch {
		case left != nil && right != nil:
			return left.CreatedAt.After(right.CreatedAt)
		case left != nil:
			return true
		case right != nil:
			return false
		default:
			return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
		}
	})
	return summaries, nil
}

// LockRoom freezes a room to new messages. Dissolving a pairing is governed
// outside this core; the store only provides the switch.
func (s *Service) LockRoom(ctx context.Context, roomID string) error {
	result := s.db.WithContext(ctx).Model(&Room{}).
		Where("id = ?", roomID).
		Update("is_locked", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	s.logger.Info("chat room locked", zap.String("room_id", roomID))
	return nil
}

func (s *Service) authorizedRoom(ctx context.Context, actingUserID, roomID string) (Room, error) {
	var room Room
	err := s.db.WithContext(ctx).Where("id = ?", roomID).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Room{}, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	if err != nil {
		return Room{}, err
	}
	if !room.Participant(actingUserID) {
		return Room{}, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	return room, nil
}

func (s *Service) publicOrBare(ctx context.Context, userID string) (users.PublicProfile, error) {
	if s.profiles == nil {
		return users.PublicProfile{UserID: userID}, nil
	}
	profile, err := s.profiles.Public(ctx, userID)
	if errors.Is(err, users.ErrProfileNotFound) {
		return users.PublicProfile{UserID: userID}, nil
	}
	if err != nil {
		return users.PublicProfile{}, err
	}
	return profile, nil
}

func (s *Service) matchContext(ctx context.Context, room Room, actingUserID string) (MatchContext, error) {
	if s.matches == nil || s.meals == nil {
		return MatchContext{}, nil
	}
	attribution, err := s.matches.MatchMeals(ctx, room.MatchID)
	if err != nil {
		// A room without a resolvable match still serves its messages.
		return MatchContext{}, nil
	}

	myMealID, theirMealID := attribution.User1MealID, attribution.User2MealID
	if actingUserID == attribution.User2ID {
		myMealID, theirMealID = attribution.User2MealID, attribution.User1MealID
	}

	var result MatchContext
	if meal, err := s.meals.Get(ctx, myMealID); err == nil {
		mealCopy := meal
		result.MyMeal = &mealCopy
	} else if !errors.Is(err, meals.ErrMealNotFound) {
		return MatchContext{}, err
	}
	if meal, err := s.meals.Get(ctx, theirMealID); err == nil {
		mealCopy := meal
		result.TheirMeal = &mealCopy
	} else if !errors.Is(err, meals.ErrMealNotFound) {
		return MatchContext{}, err
	}
	return result, nil
}

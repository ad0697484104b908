package match

import (
	"context"
	"errors"

	"github.com/mealmatch/backend/internal/meals"
	"github.com/mealmatch/backend/internal/users"
)

// ReceivedRequest is a request targeting the caller, enriched with the
// sender's public profile and the meal they offered.
type ReceivedRequest struct {
	Request    Request             `json:"request"`
	Sender     users.PublicProfile `json:"sender"`
	SenderMeal *meals.Meal         `json:"sender_meal,omitempty"`
}

// SentRequest is a request the caller initiated, enriched with the
// receiver's public profile.
type SentRequest struct {
	Request  Request             `json:"request"`
	Receiver users.PublicProfile `json:"receiver"`
}

// ListReceived returns every request targeting the user, newest first.
func (e *Engine) ListReceived(ctx context.Context, userID string) ([]ReceivedRequest, error) {
	var requests []Request
	err := e.db.WithContext(ctx).
		Where("to_user_id = ?", userID).
		Order("created_at DESC").
		Find(&requests).
		Error
	if err != nil {
		return nil, err
	}

	profileCache := map[string]users.PublicProfile{}
	result := make([]ReceivedRequest, 0, len(requests))
	for _, request := range requests {
		entry := ReceivedRequest{Request: request}
		entry.Sender, err = e.cachedPublic(ctx, profileCache, request.FromUserID)
		if err != nil {
			return nil, err
		}
		if meal, err := e.meals.Get(ctx, request.SenderMealID); err == nil {
			mealCopy := meal
			entry.SenderMeal = &mealCopy
		} else if !errors.Is(err, meals.ErrMealNotFound) {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, nil
}

// ListSent returns every request the user initiated, newest first.
func (e *Engine) ListSent(ctx context.Context, userID string) ([]SentRequest, error) {
	var requests []Request
	err := e.db.WithContext(ctx).
		Where("from_user_id = ?", userID).
		Order("created_at DESC").
		Find(&requests).
		Error
	if err != nil {
		return nil, err
	}

	profileCache := map[string]users.PublicProfile{}
	result := make([]SentRequest, 0, len(requests))
	for _, request := range requests {
		entry := SentRequest{Request: request}
		entry.Receiver, err = e.cachedPublic(ctx, profileCache, request.ToUserID)
		if err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, nil
}

func (e *Engine) cachedPublic(ctx context.Context, cache map[string]users.PublicProfile, userID string) (users.PublicProfile, error) {
	if cached, ok := cache[userID]; ok {
		return cached, nil
	}
	profile, err := e.profiles.Public(ctx, userID)
	if err != nil {
		if errors.Is(err, users.ErrProfileNotFound) {
			// Counterpart never completed login; surface the bare id.
			profile = users.PublicProfile{UserID: userID}
		} else {
			return users.PublicProfile{}, err
		}
	}
	cache[userID] = profile
	return profile, nil
}

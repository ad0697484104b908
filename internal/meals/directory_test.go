package meals

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type sequentialIDGenerator struct {
	next int
}

func (g *sequentialIDGenerator) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("meal-%d", g.next), nil
}

type directoryHarness struct {
	directory *Directory
	now       time.Time
}

func newDirectoryHarness(t *testing.T) *directoryHarness {
	t.Helper()

	dsn := fmt.Sprintf("file:meals_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Meal{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	harness := &directoryHarness{now: time.Unix(1750000000, 0).UTC()}
	directory, err := NewDirectory(DirectoryConfig{
		Database:   db,
		Clock:      func() time.Time { return harness.now },
		IDProvider: &sequentialIDGenerator{},
	})
	if err != nil {
		t.Fatalf("failed to construct directory: %v", err)
	}
	harness.directory = directory
	return harness
}

func TestPublishValidatesInput(t *testing.T) {
	h := newDirectoryHarness(t)

	if _, err := h.directory.Publish(context.Background(), "alice", PublishInput{Name: "   "}); !errors.Is(err, ErrInvalidMeal) {
		t.Fatalf("expected ErrInvalidMeal for a blank name, got %v", err)
	}
	if _, err := h.directory.Publish(context.Background(), "", PublishInput{Name: "soup"}); !errors.Is(err, ErrInvalidMeal) {
		t.Fatalf("expected ErrInvalidMeal for a missing owner, got %v", err)
	}
}

func TestLatestByOwnerPicksNewest(t *testing.T) {
	h := newDirectoryHarness(t)

	if _, err := h.directory.Publish(context.Background(), "alice", PublishInput{Name: "older"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.now = h.now.Add(time.Minute)
	newest, err := h.directory.Publish(context.Background(), "alice", PublishInput{Name: "newest"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	latest, err := h.directory.LatestByOwner(context.Background(), "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latest.ID != newest.ID {
		t.Fatalf("expected %s, got %s", newest.ID, latest.ID)
	}
}

func TestLatestByOwnerWithoutMeals(t *testing.T) {
	h := newDirectoryHarness(t)

	if _, err := h.directory.LatestByOwner(context.Background(), "nobody"); !errors.Is(err, ErrNoMealsPublished) {
		t.Fatalf("expected ErrNoMealsPublished, got %v", err)
	}
}

func TestOwnerResolution(t *testing.T) {
	h := newDirectoryHarness(t)

	meal, err := h.directory.Publish(context.Background(), "alice", PublishInput{Name: "soup"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	owner, err := h.directory.Owner(context.Background(), meal.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if owner != "alice" {
		t.Fatalf("expected alice, got %s", owner)
	}

	if _, err := h.directory.Owner(context.Background(), "missing"); !errors.Is(err, ErrMealNotFound) {
		t.Fatalf("expected ErrMealNotFound, got %v", err)
	}
}

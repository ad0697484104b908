package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mealmatch/backend/internal/auth"
	"github.com/mealmatch/backend/internal/chat"
	"github.com/mealmatch/backend/internal/database"
	"github.com/mealmatch/backend/internal/ids"
	"github.com/mealmatch/backend/internal/match"
	"github.com/mealmatch/backend/internal/meals"
	"github.com/mealmatch/backend/internal/users"
)

const testSigningSecret = "router-test-secret"

func newTestDependencies(t *testing.T) (Dependencies, *auth.TokenIssuer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:server_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := database.OpenSQLite(dsn, nil)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	tokenConfig := auth.TokenConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        "mealmatch-identity",
		Audience:      "mealmatch-api",
		TokenTTL:      time.Hour,
	}
	verifier := auth.NewTokenVerifier(tokenConfig)
	issuer := auth.NewTokenIssuer(tokenConfig)

	idProvider := ids.NewUUIDProvider()

	usersService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct users service: %v", err)
	}
	mealDirectory, err := meals.NewDirectory(meals.DirectoryConfig{Database: db, IDProvider: idProvider})
	if err != nil {
		t.Fatalf("failed to construct meal directory: %v", err)
	}
	engine, err := match.NewEngine(match.EngineConfig{
		Database:   db,
		IDProvider: idProvider,
		Meals:      mealDirectory,
		Profiles:   usersService,
	})
	if err != nil {
		t.Fatalf("failed to construct engine: %v", err)
	}
	chatService, err := chat.NewService(chat.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
		Matches:    engine,
		Profiles:   usersService,
		Meals:      mealDirectory,
	})
	if err != nil {
		t.Fatalf("failed to construct chat service: %v", err)
	}

	deps := Dependencies{
		Verifier: verifier,
		Users:    usersService,
		Meals:    mealDirectory,
		Engine:   engine,
		Chat:     chatService,
	}
	return deps, issuer
}

func newTestHandler(t *testing.T) (http.Handler, *auth.TokenIssuer) {
	t.Helper()
	deps, issuer := newTestDependencies(t)
	handler, err := NewHTTPHandler(deps)
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}
	return handler, issuer
}

func mintToken(t *testing.T, issuer *auth.TokenIssuer, subject string) string {
	t.Helper()
	token, _, err := issuer.Issue(subject, subject+"@example.com")
	if err != nil {
		t.Fatalf("failed to mint token: %v", err)
	}
	return token
}

func doRequest(t *testing.T, handler http.Handler, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var request *http.Request
	if body != "" {
		request = httptest.NewRequest(method, target, strings.NewReader(body))
		request.Header.Set("Content-Type", "application/json")
	} else {
		request = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func errorCode(t *testing.T, recorder *httptest.ResponseRecorder) string {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode body %q: %v", recorder.Body.String(), err)
	}
	code, _ := payload["error"].(string)
	return code
}

func TestHealthzIsPublic(t *testing.T) {
	handler, _ := newTestHandler(t)

	recorder := doRequest(t, handler, http.MethodGet, "/healthz", "", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
}

func TestMealListingIsPublic(t *testing.T) {
	handler, _ := newTestHandler(t)

	recorder := doRequest(t, handler, http.MethodGet, "/meals", "", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 for unauthenticated meal listing, got %d", recorder.Code)
	}
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	handler, _ := newTestHandler(t)

	recorder := doRequest(t, handler, http.MethodGet, "/match/received", "", "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}

	recorder = doRequest(t, handler, http.MethodGet, "/match/received", "garbage-token", "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for an invalid token, got %d", recorder.Code)
	}
}

func TestSendMatchWithoutOwnMeal(t *testing.T) {
	handler, issuer := newTestHandler(t)
	token := mintToken(t, issuer, "alice")

	recorder := doRequest(t, handler, http.MethodPost, "/match/send", token,
		`{"to_user_id":"bob","meal_id":"meal-1"}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if code := errorCode(t, recorder); code != "no_own_meal" {
		t.Fatalf("expected no_own_meal, got %q", code)
	}
}

func TestAcceptUnknownRequest(t *testing.T) {
	handler, issuer := newTestHandler(t)
	token := mintToken(t, issuer, "bob")

	recorder := doRequest(t, handler, http.MethodPost, "/match/accept", token,
		`{"request_id":"missing"}`)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if code := errorCode(t, recorder); code != "not_found" {
		t.Fatalf("expected not_found, got %q", code)
	}
}

func TestChatMessagesRejectsBadCursor(t *testing.T) {
	handler, issuer := newTestHandler(t)
	token := mintToken(t, issuer, "alice")

	recorder := doRequest(t, handler, http.MethodGet, "/chat/messages?room_id=room-1&after=yesterday", token, "")
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	if code := errorCode(t, recorder); code != "invalid_cursor" {
		t.Fatalf("expected invalid_cursor, got %q", code)
	}

	recorder = doRequest(t, handler, http.MethodGet, "/chat/messages?after=1", token, "")
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a missing room id, got %d", recorder.Code)
	}
}

func TestThrottleLimitsBurstsPerClient(t *testing.T) {
	deps, _ := newTestDependencies(t)
	deps.ThrottleRPS = 1
	deps.ThrottleBurst = 3
	handler, err := NewHTTPHandler(deps)
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}

	for i := 0; i < 3; i++ {
		recorder := doRequest(t, handler, http.MethodGet, "/healthz", "", "")
		if recorder.Code != http.StatusOK {
			t.Fatalf("request %d inside the burst should pass, got %d", i+1, recorder.Code)
		}
	}

	recorder := doRequest(t, handler, http.MethodGet, "/healthz", "", "")
	if recorder.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 past the burst, got %d", recorder.Code)
	}
	if code := errorCode(t, recorder); code != "too_many_requests" {
		t.Fatalf("expected too_many_requests, got %q", code)
	}
}

func TestSendChatMessageToUnknownRoom(t *testing.T) {
	handler, issuer := newTestHandler(t)
	token := mintToken(t, issuer, "alice")

	recorder := doRequest(t, handler, http.MethodPost, "/chat/send", token,
		`{"room_id":"missing","message":"hi"}`)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

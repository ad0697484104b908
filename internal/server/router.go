package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mealmatch/backend/internal/auth"
	"github.com/mealmatch/backend/internal/chat"
	"github.com/mealmatch/backend/internal/match"
	"github.com/mealmatch/backend/internal/meals"
	"github.com/mealmatch/backend/internal/users"
	"go.uber.org/zap"
)

const userIDContextKey = "mealmatch_user_id"

var (
	errMissingVerifier     = errors.New("identity verifier dependency required")
	errMissingUsersService = errors.New("users service dependency required")
	errMissingMealsService = errors.New("meal directory dependency required")
	errMissingEngine       = errors.New("match engine dependency required")
	errMissingChatService  = errors.New("chat service dependency required")
)

// IdentityVerifier validates the bearer credential of an incoming request.
type IdentityVerifier interface {
	Verify(ctx context.Context, credential string) (auth.IdentityClaims, error)
}

// Dependencies wires the router to its collaborators.
type Dependencies struct {
	Verifier      IdentityVerifier
	Users         *users.Service
	Meals         *meals.Directory
	Engine        *match.Engine
	Chat          *chat.Service
	Logger        *zap.Logger
	ThrottleRPS   float64
	ThrottleBurst int
}

// NewHTTPHandler builds the full HTTP surface of the service.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Verifier == nil {
		return nil, errMissingVerifier
	}
	if deps.Users == nil {
		return nil, errMissingUsersService
	}
	if deps.Meals == nil {
		return nil, errMissingMealsService
	}
	if deps.Engine == nil {
		return nil, errMissingEngine
	}
	if deps.Chat == nil {
		return nil, errMissingChatService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	if deps.ThrottleRPS > 0 && deps.ThrottleBurst > 0 {
		router.Use(newClientThrottle(deps.ThrottleRPS, deps.ThrottleBurst).middleware())
	}

	handler := &httpHandler{
		verifier: deps.Verifier,
		users:    deps.Users,
		meals:    deps.Meals,
		engine:   deps.Engine,
		chat:     deps.Chat,
		logger:   logger,
	}

	router.GET("/healthz", handler.handleHealthz)
	router.GET("/meals", handler.handleListMeals)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/meals", handler.handlePublishMeal)
	protected.GET("/profile/:id", handler.handleProfile)
	protected.POST("/match/send", handler.handleSendMatchRequest)
	protected.GET("/match/received", handler.handleReceivedMatches)
	protected.GET("/match/sent", handler.handleSentMatches)
	protected.POST("/match/accept", handler.handleAcceptMatch)
	protected.POST("/match/reject", handler.handleRejectMatch)
	protected.GET("/chat/rooms", handler.handleChatRooms)
	protected.GET("/chat/room/:id", handler.handleChatRoom)
	protected.POST("/chat/send", handler.handleSendChatMessage)
	protected.GET("/chat/messages", handler.handleNewChatMessages)

	return router, nil
}

type httpHandler struct {
	verifier IdentityVerifier
	users    *users.Service
	meals    *meals.Directory
	engine   *match.Engine
	chat     *chat.Service
	logger   *zap.Logger
}

func (h *httpHandler) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	credential := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if credential == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	claims, err := h.verifier.Verify(c.Request.Context(), credential)
	if err != nil {
		h.logger.Warn("credential verification failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	userID, err := h.users.Ensure(c.Request.Context(), claims)
	if err != nil {
		h.logger.Error("profile ensure failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	c.Set(userIDContextKey, userID)
	c.Next()
}

type publishMealPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
}

func (h *httpHandler) handlePublishMeal(c *gin.Context) {
	var request publishMealPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	meal, err := h.meals.Publish(c.Request.Context(), c.GetString(userIDContextKey), meals.PublishInput{
		Name:        request.Name,
		Description: request.Description,
		ImageURL:    request.ImageURL,
	})
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, meal)
}

func (h *httpHandler) handleListMeals(c *gin.Context) {
	listing, err := h.meals.ListAll(c.Request.Context())
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (h *httpHandler) handleProfile(c *gin.Context) {
	ctx := c.Request.Context()
	profileID := c.Param("id")

	profile, err := h.users.Public(ctx, profileID)
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	published, err := h.meals.ListByOwner(ctx, profileID)
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	matchCount, err := h.engine.AcceptedCount(ctx, profileID)
	if err != nil {
		h.writeDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":        profile,
		"meals":       published,
		"match_count": matchCount,
	})
}

type sendMatchPayload struct {
	ToUserID string `json:"to_user_id"`
	MealID   string `json:"meal_id"`
}

func (h *httpHandler) handleSendMatchRequest(c *gin.Context) {
	var request sendMatchPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	created, err := h.engine.SendRequest(c.Request.Context(), c.GetString(userIDContextKey), request.ToUserID, request.MealID)
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, created)
}

func (h *httpHandler) handleReceivedMatches(c *gin.Context) {
	listing, err := h.engine.ListReceived(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (h *httpHandler) handleSentMatches(c *gin.Context) {
	listing, err := h.engine.ListSent(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

type requestDecisionPayload struct {
	RequestID string `json:"request_id"`
}

func (h *httpHandler) handleAcceptMatch(c *gin.Context) {
	var request requestDecisionPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.RequestID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	acceptance, err := h.engine.Accept(c.Request.Context(), c.GetString(userIDContextKey), request.RequestID)
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"match": acceptance.Match,
		"room":  acceptance.Room,
	})
}

func (h *httpHandler) handleRejectMatch(c *gin.Context) {
	var request requestDecisionPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.RequestID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if err := h.engine.Reject(c.Request.Context(), c.GetString(userIDContextKey), request.RequestID); err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *httpHandler) handleChatRooms(c *gin.Context) {
	summaries, err := h.chat.ListRooms(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, summaries)
}

func (h *httpHandler) handleChatRoom(c *gin.Context) {
	view, err := h.chat.Room(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"))
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type sendMessagePayload struct {
	RoomID  string `json:"room_id"`
	Message string `json:"message"`
}

func (h *httpHandler) handleSendChatMessage(c *gin.Context) {
	var request sendMessagePayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.RoomID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	message, err := h.chat.SendMessage(c.Request.Context(), c.GetString(userIDContextKey), request.RoomID, request.Message)
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, message)
}

func (h *httpHandler) handleNewChatMessages(c *gin.Context) {
	roomID := strings.TrimSpace(c.Query("room_id"))
	if roomID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	afterSeq := int64(0)
	if raw := strings.TrimSpace(c.Query("after")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_cursor"})
			return
		}
		afterSeq = parsed
	}

	messages, err := h.chat.MessagesAfter(c.Request.Context(), c.GetString(userIDContextKey), roomID, afterSeq)
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// writeDomainError maps service sentinel errors onto stable HTTP codes.
func (h *httpHandler) writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, match.ErrInvalidRequest), errors.Is(err, meals.ErrInvalidMeal):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
	case errors.Is(err, match.ErrNoOwnMeal):
		c.JSON(http.StatusBadRequest, gin.H{"error": "no_own_meal"})
	case errors.Is(err, chat.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty_message"})
	case errors.Is(err, match.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
	case errors.Is(err, chat.ErrRoomLocked):
		c.JSON(http.StatusForbidden, gin.H{"error": "room_locked"})
	case errors.Is(err, match.ErrRequestNotFound),
		errors.Is(err, chat.ErrRoomNotFound),
		errors.Is(err, users.ErrProfileNotFound),
		errors.Is(err, meals.ErrMealNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, match.ErrMatchRoomMissing):
		h.logger.Error("match missing its chat room", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "match_room_missing"})
	default:
		h.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

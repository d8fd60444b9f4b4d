// Package stubserver is a self-contained stand-in for the ConnectSA dashboard
// backend: the REST booking contract, a cookie session, and a realtime
// websocket feed, all over in-memory fixtures. It exists so the watcher and
// the engine tests have a live counterpart without the production stack.
package stubserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Molemo21/ConnectSA-k9-sub010/internal/wire"
	"github.com/Molemo21/ConnectSA-k9-sub010/pkg/syncengine"
)

const claimsContextKey = "auth_claims"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(request *http.Request) bool { return true },
}

// Run boots the stub API and blocks until the context ends.
func Run(ctx context.Context, cfg Config) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("zap init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		return err
	}

	handler := &httpHandler{
		logger: logger,
		cfg:    cfg,
		state:  newState(cfg.ProviderID, time.Now),
		hub:    newHub(logger),
	}
	router := setupRouter(cfg, handler)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("stub api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func setupRouter(cfg Config, handler *httpHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Idempotency-Key"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/api/auth/login", handler.handleLogin)

	api := router.Group("/api")
	api.Use(handler.sessionMiddleware())

	api.GET("/auth/me", handler.handleSession)
	api.GET("/provider/bookings", handler.handleBookings)
	api.GET("/provider/bank-details", handler.handleBankDetails)
	api.POST("/book-service/:id/:action", handler.handleBookingAction)
	api.POST("/provider/cash-payment/confirm", handler.handleCashConfirm)
	api.POST("/simulate/payment-captured/:id", handler.handleSimulatePayment)
	api.GET("/realtime", handler.handleRealtime)

	return router
}

type httpHandler struct {
	logger *zap.Logger
	cfg    Config
	state  *state
	hub    *hub
}

type sessionClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

type loginRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// handleLogin issues the session cookie. The stub trusts any credentials; it
// only exists to give the client a cookie to replay.
func (handler *httpHandler) handleLogin(ctx *gin.Context) {
	var request loginRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	if request.Email == "" {
		request.Email = handler.cfg.ProviderEmail
	}
	if request.Role == "" {
		request.Role = "PROVIDER"
	}

	now := time.Now()
	claims := sessionClaims{
		Email: request.Email,
		Role:  request.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   handler.cfg.ProviderID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(handler.cfg.SessionTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(handler.cfg.SessionSigningKey))
	if err != nil {
		handler.logger.Error("session sign failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("session_error", "could not issue session"))
		return
	}

	ctx.SetCookie(handler.cfg.SessionCookieName, token, int(handler.cfg.SessionTTL.Seconds()), "/", "", false, true)
	ctx.JSON(http.StatusOK, wire.Session{User: wire.SessionUser{
		ID:    handler.cfg.ProviderID,
		Email: request.Email,
		Role:  request.Role,
	}})
}

func (handler *httpHandler) sessionMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		raw, err := ctx.Cookie(handler.cfg.SessionCookieName)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
			return
		}
		claims := &sessionClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return []byte(handler.cfg.SessionSigningKey), nil
		})
		if err != nil || !token.Valid {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid session"))
			return
		}
		ctx.Set(claimsContextKey, claims)
		ctx.Next()
	}
}

func (handler *httpHandler) handleSession(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	ctx.JSON(http.StatusOK, wire.Session{User: wire.SessionUser{
		ID:    claims.Subject,
		Email: claims.Email,
		Role:  claims.Role,
	}})
}

func (handler *httpHandler) handleBookings(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, wire.FromSnapshot(handler.state.snapshot()))
}

func (handler *httpHandler) handleBankDetails(ctx *gin.Context) {
	details := handler.state.bank()
	ctx.JSON(http.StatusOK, wire.BankDetails{
		BankName:            details.BankName,
		AccountName:         details.AccountName,
		AccountNumberMasked: details.AccountNumberMasked,
		BranchCode:          details.BranchCode,
		UpdatedAt:           details.UpdatedAt,
	})
}

func (handler *httpHandler) handleBookingAction(ctx *gin.Context) {
	bookingID := ctx.Param("id")
	action := syncengine.BookingAction(ctx.Param("action"))
	switch action {
	case syncengine.ActionAccept, syncengine.ActionStart, syncengine.ActionComplete:
	default:
		ctx.JSON(http.StatusNotFound, errorResponse("unknown_action", "unknown booking action"))
		return
	}
	handler.runAction(ctx, bookingID, action)
}

func (handler *httpHandler) handleCashConfirm(ctx *gin.Context) {
	var request wire.CashConfirmRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	handler.runAction(ctx, request.BookingID, syncengine.ActionConfirmCashPayment)
}

func (handler *httpHandler) runAction(ctx *gin.Context, bookingID string, action syncengine.BookingAction) {
	record, conflict, err := handler.state.applyAction(bookingID, action, ctx.GetHeader("Idempotency-Key"))
	if err != nil {
		ctx.JSON(http.StatusNotFound, errorResponse("not_found", err.Error()))
		return
	}
	if conflict != "" {
		ctx.JSON(http.StatusConflict, errorResponse("invalid_transition", conflict))
		return
	}

	handler.hub.broadcast(syncengine.RealtimeEvent{
		Resource:   syncengine.ResourceBooking,
		Action:     syncengine.EventActionStatusChanged,
		Data:       syncengine.EventData{Booking: &record},
		OccurredAt: record.UpdatedAt,
	})
	ctx.JSON(http.StatusOK, wire.BookingEnvelope{Success: true, Booking: wire.FromRecord(record)})
}

// handleSimulatePayment flips an online booking's payment to captured and
// broadcasts the payment event, letting a demo exercise the push path without
// a payment gateway.
func (handler *httpHandler) handleSimulatePayment(ctx *gin.Context) {
	record, err := handler.state.capturePayment(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusNotFound, errorResponse("not_found", err.Error()))
		return
	}
	handler.hub.broadcast(syncengine.RealtimeEvent{
		Resource: syncengine.ResourcePayment,
		Action:   syncengine.EventActionStatusChanged,
		Data: syncengine.EventData{Payment: &syncengine.PaymentUpdate{
			BookingID:   record.ID,
			Status:      record.Payment.Status,
			AmountCents: record.Payment.AmountCents,
		}},
		OccurredAt: record.UpdatedAt,
	})
	ctx.JSON(http.StatusOK, wire.BookingEnvelope{Success: true, Booking: wire.FromRecord(record)})
}

func (handler *httpHandler) handleRealtime(ctx *gin.Context) {
	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		handler.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}
	frames := handler.hub.add(conn)
	defer handler.hub.remove(conn)
	defer conn.Close()

	// Reads are discarded; the feed is one-way. The read loop only exists to
	// notice the peer going away.
	go func() {
		for {
			if _, _, readErr := conn.ReadMessage(); readErr != nil {
				handler.hub.remove(conn)
				return
			}
		}
	}()

	for frame := range frames {
		if writeErr := conn.WriteJSON(frame); writeErr != nil {
			return
		}
	}
}

func getClaims(ctx *gin.Context) *sessionClaims {
	claimsValue, ok := ctx.Get(claimsContextKey)
	if !ok {
		return nil
	}
	claims, _ := claimsValue.(*sessionClaims)
	return claims
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

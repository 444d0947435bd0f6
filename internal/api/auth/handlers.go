package auth

import (
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/threadline/internal/ratelimit"
	"github.com/threadline/pkg/models"
)

// Handlers serves registration and login. Both endpoints are rate limited
// per client before any database work.
type Handlers struct {
	db      *sql.DB
	tokens  *TokenService
	limiter ratelimit.Limiter

	registrationsPerHour int
	loginsPerMinute      int
}

// NewHandlers creates the auth handlers.
func NewHandlers(db *sql.DB, tokens *TokenService, limiter ratelimit.Limiter, registrationsPerHour, loginsPerMinute int) *Handlers {
	return &Handlers{
		db:                   db,
		tokens:               tokens,
		limiter:              limiter,
		registrationsPerHour: registrationsPerHour,
		loginsPerMinute:      loginsPerMinute,
	}
}

// RegisterRequest is the signup payload.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the login payload.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// authResponse pairs the account with its freshly issued token.
type authResponse struct {
	User  *models.User   `json:"user"`
	Token *TokenResponse `json:"token"`
}

// Register handles POST /api/v1/auth/register.
func (h *Handlers) Register(c echo.Context) error {
	if err := h.allow(c, c.RealIP(), ratelimit.ActionRegister, h.registrationsPerHour, time.Hour); err != nil {
		return err
	}

	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Username == "" || req.Email == "" {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "username and email are required")
	}
	if len(req.Password) < 8 {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error().Err(err).Msg("failed to hash password")
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create account")
	}

	user := &models.User{Username: req.Username, Email: req.Email}
	err = h.db.QueryRow(`
		INSERT INTO users (username, email, password_hash)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
		RETURNING id, created_at
	`, req.Username, req.Email, string(hash)).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return echo.NewHTTPError(http.StatusConflict, "username or email already taken")
		}
		log.Error().Err(err).Msg("failed to insert user")
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create account")
	}

	token, err := h.tokens.IssueToken(user)
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to issue token")
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to issue token")
	}

	log.Info().Int64("user_id", user.ID).Str("username", user.Username).Msg("user registered")
	return c.JSON(http.StatusCreated, authResponse{User: user, Token: token})
}

// Login handles POST /api/v1/auth/login.
func (h *Handlers) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "username and password are required")
	}

	// Keyed by username so a password-guessing run against one account is
	// throttled regardless of source address.
	if err := h.allow(c, req.Username, ratelimit.ActionLogin, h.loginsPerMinute, time.Minute); err != nil {
		return err
	}

	user := &models.User{}
	err := h.db.QueryRow(`
		SELECT id, username, email, password_hash, created_at
		FROM users WHERE username = $1
	`, req.Username).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid username or password")
		}
		log.Error().Err(err).Msg("failed to look up user")
		return echo.NewHTTPError(http.StatusInternalServerError, "Login failed")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid username or password")
	}

	token, err := h.tokens.IssueToken(user)
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to issue token")
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to issue token")
	}

	return c.JSON(http.StatusOK, authResponse{User: user, Token: token})
}

// allow runs the sliding-window gate and translates a denial into a 429 with
// a Retry-After header.
func (h *Handlers) allow(c echo.Context, actor, action string, limit int, window time.Duration) error {
	if h.limiter == nil || limit <= 0 {
		return nil
	}
	d := h.limiter.Allow(actor, action, limit, window)
	if d.Allowed {
		return nil
	}

	retryAfter := d.RetryAfter.Round(time.Second)
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	c.Response().Header().Set("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())))
	return echo.NewHTTPError(http.StatusTooManyRequests,
		fmt.Sprintf("rate limit exceeded, retry after %s", retryAfter))
}

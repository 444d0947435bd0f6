package auth

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/threadline/pkg/models"
)

// TokenService issues and validates JWT access tokens.
type TokenService struct {
	db        *sql.DB
	secretKey []byte

	// TokenDuration is how long issued tokens stay valid.
	TokenDuration time.Duration
}

// JWTClaims represents the claims in our JWT tokens.
type JWTClaims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenResponse is the issued-token payload returned to clients.
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	TokenType   string    `json:"token_type"` // "Bearer"
}

// NewTokenService creates a new token service.
func NewTokenService(db *sql.DB, secretKey string, tokenTTL time.Duration) *TokenService {
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	return &TokenService{
		db:            db,
		secretKey:     []byte(secretKey),
		TokenDuration: tokenTTL,
	}
}

// IssueToken creates a signed access token for the user.
func (ts *TokenService) IssueToken(user *models.User) (*TokenResponse, error) {
	expiresAt := time.Now().Add(ts.TokenDuration)

	claims := &JWTClaims{
		UserID:   user.ID,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "threadline",
			Subject:   fmt.Sprintf("user_%d", user.ID),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	jwtString, err := token.SignedString(ts.secretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign JWT: %w", err)
	}

	return &TokenResponse{
		AccessToken: jwtString,
		ExpiresAt:   expiresAt,
		TokenType:   "Bearer",
	}, nil
}

// ValidateToken validates a JWT access token and returns the user it names.
func (ts *TokenService) ValidateToken(tokenString string) (*models.User, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ts.secretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	// Resolve the user so handlers always see current account data, not
	// whatever was true at issue time.
	user := &models.User{}
	err = ts.db.QueryRow(`
		SELECT id, username, email, password_hash, created_at
		FROM users WHERE id = $1
	`, claims.UserID).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user no longer exists")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

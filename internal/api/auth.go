package api

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"stockledger/m/internal/clock"
)

// ErrInvalidCredentials is returned for a wrong username or password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Authenticator checks the single administrator credential and issues bearer tokens.
type Authenticator struct {
	username string
	hash     []byte
	secret   []byte
	ttl      time.Duration
	clock    clock.Clock
}

// NewAuthenticator builds an Authenticator for one bcrypt-hashed admin password.
func NewAuthenticator(username string, passwordHash []byte, secret string, ttl time.Duration, clk clock.Clock) *Authenticator {
	if clk == nil {
		clk = clock.New()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Authenticator{username: username, hash: passwordHash, secret: []byte(secret), ttl: ttl, clock: clk}
}

type authClaims struct {
	jwt.RegisteredClaims
}

// Login verifies the credential and returns a signed token with its expiry.
func (a *Authenticator) Login(username, password string) (string, time.Time, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passErr := bcrypt.CompareHashAndPassword(a.hash, []byte(password))
	if !userOK || passErr != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}

	now := a.clock.Now()
	expires := now.Add(a.ttl)
	claims := authClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.username,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, expires, nil
}

// Verify parses a token and returns its subject.
func (a *Authenticator) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &authClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.clock.Now), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(*authClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid token claims")
	}
	return claims.Subject, nil
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	token, expires, err := h.auth.Login(strings.TrimSpace(req.Username), req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		respondProblem(w, problem{Status: http.StatusUnauthorized, Title: "Unauthorized", Kind: "unauthorized", Detail: err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("issue token", slog.Any("error", err))
		respondProblem(w, problem{Status: http.StatusInternalServerError, Title: "Internal Error", Kind: "internal"})
		return
	}
	respondJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expires.UTC()})
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			respondProblem(w, problem{Status: http.StatusUnauthorized, Title: "Unauthorized", Kind: "unauthorized", Detail: "missing bearer token"})
			return
		}
		if _, err := h.auth.Verify(strings.TrimSpace(header[len("Bearer "):])); err != nil {
			respondProblem(w, problem{Status: http.StatusUnauthorized, Title: "Unauthorized", Kind: "unauthorized", Detail: "invalid token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

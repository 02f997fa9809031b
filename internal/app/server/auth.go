package server

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/louisbranch/crease/internal/platform/requestctx"
)

const tokenCookieName = "crease_token"

var errTokenInvalid = errors.New("invalid access token")

// tokenVerifier checks bearer tokens minted for scoreboard clients. Tokens
// are HMAC-signed JWTs whose subject is the user id.
type tokenVerifier struct {
	secret []byte
	now    func() time.Time
}

func newTokenVerifier(secret string, now func() time.Time) *tokenVerifier {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil
	}
	if now == nil {
		now = time.Now
	}
	return &tokenVerifier{secret: []byte(secret), now: now}
}

// Verify returns the user id carried by a valid token.
func (v *tokenVerifier) Verify(token string) (string, error) {
	if v == nil {
		return "", errors.New("token verification is not configured")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errTokenInvalid
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return "", errTokenInvalid
	}

	userID := strings.TrimSpace(claims.Subject)
	if userID == "" {
		return "", errTokenInvalid
	}
	return userID, nil
}

// Sign mints a token for the given user id. Used by operator tooling and
// tests; production identity providers issue compatible tokens.
func (v *tokenVerifier) Sign(userID string, ttl time.Duration) (string, error) {
	if v == nil {
		return "", errors.New("token signing is not configured")
	}
	now := v.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func accessTokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	cookie, err := r.Cookie(tokenCookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

// withIdentity resolves the caller's identity when a token is present.
// Anonymous requests pass through as viewers; a token that fails
// verification is rejected outright.
func withIdentity(verifier *tokenVerifier, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := accessTokenFromRequest(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		if verifier == nil {
			http.Error(w, "authentication is not configured", http.StatusServiceUnavailable)
			return
		}
		userID, err := verifier.Verify(token)
		if err != nil {
			log.Printf("server: rejected token for remote=%s path=%q", r.RemoteAddr, r.URL.Path)
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(requestctx.WithUserID(r.Context(), userID)))
	})
}

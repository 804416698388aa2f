package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// userIDKey is the context key for the authenticated user's ID.
type userIDKey struct{}

// UserFromContext extracts the authenticated user ID set by the auth
// middleware. The identity always travels through the request context, never
// through process-global state.
func UserFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey{}).(int64)
	return id, ok
}

// authenticated wraps an endpoint with bearer-token authentication. The
// token is hashed with HMAC-SHA256 under the configured pepper and looked up
// in the token repository; requests without a valid token get a 401 envelope.
func (h *Handler) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			fieldError(w, http.StatusUnauthorized, "token", "unauthorized")
			return
		}

		mac := hmac.New(sha256.New, h.pepper)
		mac.Write([]byte(token))
		hash := hex.EncodeToString(mac.Sum(nil))

		userID, err := h.tokens.UserByHash(r.Context(), hash)
		if err != nil {
			fieldError(w, http.StatusUnauthorized, "token", "unauthorized")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey{}, userID)
		next(w, r.WithContext(ctx))
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}
	return auth[len(prefix):], true
}

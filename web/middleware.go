package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/sessions"

	"spiderpit/database"
)

type ContextKey string

const UserContextKey ContextKey = "user"

const sessionName = "spiderpit-session"

type AuthMiddleware struct {
	repo  *database.Repository
	store *sessions.CookieStore
}

func NewAuthMiddleware(repo *database.Repository, sessionSecret string) *AuthMiddleware {
	store := sessions.NewCookieStore([]byte(sessionSecret))

	isProduction := os.Getenv("ENVIRONMENT") == "production"

	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   30 * 24 * 60 * 60, // 30 days
		HttpOnly: true,
		Secure:   isProduction,
		SameSite: http.SameSiteLaxMode,
	}

	return &AuthMiddleware{
		repo:  repo,
		store: store,
	}
}

// LoadUser checks for a session token and loads the user into context.
// Requests without a valid session continue anonymously.
func (am *AuthMiddleware) LoadUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := am.store.Get(r, sessionName)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := session.Values["token"].(string)
		if !ok || token == "" {
			next.ServeHTTP(w, r)
			return
		}

		user, err := am.repo.GetUserBySessionToken(token, time.Now().UTC())
		if err != nil {
			// Invalid or expired token, clean up session
			delete(session.Values, "token")
			session.Save(r, w)
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth rejects unauthenticated API calls.
func (am *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUserFromContext(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, "sign in required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CreateSession issues a session token for the user and stores it in
// both the database and the cookie.
func (am *AuthMiddleware) CreateSession(w http.ResponseWriter, r *http.Request, userID string) error {
	token, err := generateSessionToken()
	if err != nil {
		return err
	}

	expiresAt := time.Now().UTC().Add(30 * 24 * time.Hour)
	if err := am.repo.CreateSession(token, userID, expiresAt); err != nil {
		return err
	}

	session, _ := am.store.Get(r, sessionName)
	session.Values["token"] = token
	return session.Save(r, w)
}

// DestroySession removes the session from the database and the cookie.
func (am *AuthMiddleware) DestroySession(w http.ResponseWriter, r *http.Request) error {
	session, err := am.store.Get(r, sessionName)
	if err != nil {
		return err
	}

	if token, ok := session.Values["token"].(string); ok && token != "" {
		if err := am.repo.DeleteSession(token); err != nil {
			return err
		}
	}

	delete(session.Values, "token")
	session.Options.MaxAge = -1
	return session.Save(r, w)
}

func GetUserFromContext(ctx context.Context) *database.User {
	user, _ := ctx.Value(UserContextKey).(*database.User)
	return user
}

func generateSessionToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"spiderpit/blob"
	"spiderpit/database"
	"spiderpit/domain"
	"spiderpit/fight"
)

type Server struct {
	router *mux.Router
	repo   *database.Repository
	engine *fight.Engine
	blobs  blob.Store
	authMW *AuthMiddleware
	authH  *AuthHandler
	hub    *EventHub
}

func NewServer(repo *database.Repository, engine *fight.Engine, blobs blob.Store, sessionSecret string) *Server {
	authMW := NewAuthMiddleware(repo, sessionSecret)
	authH := NewAuthHandler(repo, authMW)

	s := &Server{
		router: mux.NewRouter().StrictSlash(true),
		repo:   repo,
		engine: engine,
		blobs:  blobs,
		authMW: authMW,
		authH:  authH,
		hub:    NewEventHub(),
	}

	engine.SetBroadcaster(s.hub)
	s.setupRoutes()
	return s
}

// GetHub exposes the event hub so background sweeps can broadcast too.
func (s *Server) GetHub() *EventHub {
	return s.hub
}

// MountImages serves the disk blob store's directory under /images/.
// Only used in development; production images come off the CDN.
func (s *Server) MountImages(dir string) {
	s.router.PathPrefix("/images/").Handler(
		http.StripPrefix("/images/", http.FileServer(http.Dir(dir))))
}

func (s *Server) setupRoutes() {
	s.router.Use(s.authMW.LoadUser)

	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
	s.router.HandleFunc("/auth/discord", s.authH.HandleLogin).Methods("GET")
	s.router.HandleFunc("/auth/discord/callback", s.authH.HandleCallback).Methods("GET")
	s.router.HandleFunc("/logout", s.authH.HandleLogout).Methods("POST")

	s.router.HandleFunc("/ws/events", s.hub.HandleWebSocket)

	// Read-only API, no sign-in needed
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/leaderboard", s.handleLeaderboard).Methods("GET")
	api.HandleFunc("/users/ready", s.handleReadyUsers).Methods("GET")
	api.HandleFunc("/users/records", s.handleUserRecords).Methods("GET")
	api.HandleFunc("/users/lookup", s.handleLookupUser).Methods("GET")
	api.HandleFunc("/users/{id}", s.handleGetUser).Methods("GET")
	api.HandleFunc("/users/{id}/stats", s.handleUserStats).Methods("GET")
	api.HandleFunc("/users/{id}/spiders", s.handleUserSpiders).Methods("GET")
	api.HandleFunc("/spiders/{id}", s.handleGetSpider).Methods("GET")
	api.HandleFunc("/spiders/{id}/performance", s.handleSpiderPerformance).Methods("GET")
	api.HandleFunc("/fights/today", s.handleTodaysFights).Methods("GET")
	api.HandleFunc("/fights/{id}", s.handleGetFight).Methods("GET")
	api.HandleFunc("/fights/{id}/outcome", s.handleFightOutcome).Methods("GET")

	// Signed-in API
	protected := s.router.PathPrefix("/api").Subrouter()
	protected.Use(s.authMW.RequireAuth)
	protected.HandleFunc("/me", s.handleMe).Methods("GET")
	protected.HandleFunc("/me", s.handleUpdateProfile).Methods("PATCH")
	protected.HandleFunc("/me/status", s.handleSetStatus).Methods("POST")
	protected.HandleFunc("/me/next-available", s.handleNextAvailable).Methods("GET")
	protected.HandleFunc("/spiders", s.handleRegisterSpider).Methods("POST")
	protected.HandleFunc("/spiders/{id}/deactivate", s.handleDeactivateSpider).Methods("POST")
	protected.HandleFunc("/challenges", s.handleCreateChallenge).Methods("POST")
	protected.HandleFunc("/challenges/incoming", s.handleIncomingChallenges).Methods("GET")
	protected.HandleFunc("/challenges/outgoing", s.handleOutgoingChallenges).Methods("GET")
	protected.HandleFunc("/challenges/{id}", s.handleGetChallenge).Methods("GET")
	protected.HandleFunc("/challenges/{id}/accept", s.handleAcceptChallenge).Methods("POST")
	protected.HandleFunc("/challenges/{id}/decline", s.handleDeclineChallenge).Methods("POST")
}

func (s *Server) Start(port string) error {
	loggedRouter := handlers.LoggingHandler(log.Writer(), s.router)
	log.Printf("Server starting on port %s", port)
	return http.ListenAndServe(":"+port, loggedRouter)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "spiderpit",
		"status":  "ok",
	})
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps the error taxonomy onto HTTP statuses. Unknown
// errors are logged and masked as 500s.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidData):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrQuotaExceeded):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, domain.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "storage temporarily unavailable")
	default:
		log.Printf("Internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func pathID(r *http.Request) string {
	return mux.Vars(r)["id"]
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request body", domain.ErrInvalidData)
	}
	return nil
}

package web

import (
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"spiderpit/challenge"
	"spiderpit/database"
	"spiderpit/domain"
	"spiderpit/stats"
	"spiderpit/utils"
)

const (
	// maxActiveSpiders caps a user's stable; registering past it is a
	// quota error, not a validation error.
	maxActiveSpiders = 8
	maxImageBytes    = 5 << 20
)

// --- users & leaderboard ---

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	fights, err := s.repo.ListAllFights()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats.Leaderboard(fights))
}

// handleReadyUsers lists players who flagged themselves ready to fight,
// most recently active first. The matchmaking read.
func (s *Server) handleReadyUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.repo.ListReadyUsers()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// handleUserRecords is the counters-based standings view: every user
// ordered by stored wins/losses, no minimum-fight cutoff.
func (s *Server) handleUserRecords(w http.ResponseWriter, r *http.Request) {
	users, err := s.repo.ListUsersByRecord()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleLookupUser(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" {
		writeDomainError(w, fmt.Errorf("%w: username query parameter is required", domain.ErrInvalidData))
		return
	}
	user, err := s.repo.GetUserByUsername(username)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.repo.GetUser(pathID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	userID := pathID(r)
	fights, err := s.repo.ListFightsByUser(userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats.AggregateUser(userID, fights))
}

func (s *Server) handleUserSpiders(w http.ResponseWriter, r *http.Request) {
	spiders, err := s.repo.ListSpidersByOwner(pathID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, spiders)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, GetUserFromContext(r.Context()))
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	var body struct {
		DisplayName *string `json:"display_name"`
		Town        *string `json:"town"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeDomainError(w, err)
		return
	}
	update := database.UserProfileUpdate{DisplayName: body.DisplayName, Town: body.Town}
	if err := s.repo.UpdateUserProfile(user.ID, update, time.Now().UTC()); err != nil {
		writeDomainError(w, err)
		return
	}
	updated, err := s.repo.GetUser(user.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.repo.SetUserStatus(user.ID, body.Status, time.Now().UTC()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": body.Status})
}

func (s *Server) handleNextAvailable(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	now := time.Now().UTC()
	spiders, err := s.repo.ListSpidersByOwner(user.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	eligibleNow := false
	for i := range spiders {
		if challenge.SpiderEligible(&spiders[i], now) {
			eligibleNow = true
			break
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"eligible_now":   eligibleNow,
		"next_available": challenge.NextAvailableTime(spiders, now),
	})
}

// --- spiders ---

func (s *Server) handleRegisterSpider(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	now := time.Now().UTC()

	existing, err := s.repo.ListSpidersByOwner(user.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	active := 0
	for i := range existing {
		if existing[i].IsActive {
			active++
		}
	}
	if active >= maxActiveSpiders {
		writeDomainError(w, fmt.Errorf("%w: at most %d active spiders", domain.ErrQuotaExceeded, maxActiveSpiders))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes+(64<<10))
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		writeDomainError(w, fmt.Errorf("%w: image too large or malformed form", domain.ErrInvalidData))
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	species := strings.TrimSpace(r.FormValue("species"))
	if name == "" || species == "" {
		writeDomainError(w, fmt.Errorf("%w: name and species are required", domain.ErrInvalidData))
		return
	}
	deadliness, err := strconv.ParseFloat(r.FormValue("deadliness_score"), 64)
	if err != nil || deadliness < 0 {
		writeDomainError(w, fmt.Errorf("%w: deadliness_score must be a non-negative number", domain.ErrInvalidData))
		return
	}
	confidence, err := strconv.ParseFloat(r.FormValue("confidence"), 64)
	if err != nil || confidence < 0 || confidence > 1 {
		writeDomainError(w, fmt.Errorf("%w: confidence must be within [0,1]", domain.ErrInvalidData))
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeDomainError(w, fmt.Errorf("%w: spider registration requires an image", domain.ErrInvalidData))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeDomainError(w, fmt.Errorf("read image: %w", err))
		return
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		writeDomainError(w, fmt.Errorf("%w: uploaded file is not an image", domain.ErrInvalidData))
		return
	}

	ext := path.Ext(header.Filename)
	if ext == "" {
		ext = "." + strings.TrimPrefix(contentType, "image/")
	}
	key := "spiders/" + uuid.NewString() + ext

	imageURL, err := s.blobs.Upload(r.Context(), key, data, contentType)
	if err != nil {
		writeDomainError(w, fmt.Errorf("%w: image upload failed: %v", domain.ErrUnavailable, err))
		return
	}

	spider, err := s.repo.CreateSpider(database.Spider{
		OwnerID:         user.ID,
		Name:            name,
		Species:         species,
		DeadlinessScore: deadliness,
		Confidence:      confidence,
		ImageURL:        imageURL,
		ImageSizeBytes:  int64(len(data)),
		CreatedAt:       now,
	})
	if err != nil {
		// Don't leave an orphaned image behind.
		_ = s.blobs.Delete(r.Context(), imageURL)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, spider)
}

func (s *Server) handleGetSpider(w http.ResponseWriter, r *http.Request) {
	spider, err := s.repo.GetSpider(pathID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, spider)
}

func (s *Server) handleSpiderPerformance(w http.ResponseWriter, r *http.Request) {
	spiderID := pathID(r)
	fights, err := s.repo.ListFightsBySpider(spiderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats.AggregateSpider(spiderID, fights))
}

func (s *Server) handleDeactivateSpider(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	spider, err := s.repo.GetSpider(pathID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if spider.OwnerID != user.ID {
		writeDomainError(w, fmt.Errorf("%w: spider %s is not yours", domain.ErrPermissionDenied, spider.ID))
		return
	}
	if err := s.repo.DeactivateSpider(spider.ID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

// --- challenges ---

func (s *Server) handleCreateChallenge(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	now := time.Now().UTC()

	var body struct {
		ChallengedID string `json:"challenged_id"`
		SpiderID     string `json:"spider_id"`
		Message      string `json:"message"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeDomainError(w, err)
		return
	}

	if _, err := s.repo.GetUser(body.ChallengedID); err != nil {
		writeDomainError(w, fmt.Errorf("challenged user: %w", err))
		return
	}

	spider, err := s.repo.GetSpider(body.SpiderID)
	if err != nil {
		writeDomainError(w, fmt.Errorf("challenger spider: %w", err))
		return
	}
	if spider.OwnerID != user.ID {
		writeDomainError(w, fmt.Errorf("%w: spider %s is not yours", domain.ErrPermissionDenied, spider.ID))
		return
	}
	if !challenge.SpiderEligible(spider, now) {
		writeDomainError(w, fmt.Errorf("%w: spider %s is inactive or on cooldown", domain.ErrInvalidData, spider.ID))
		return
	}

	existing, err := s.repo.ListPendingBetween(user.ID, body.ChallengedID, now)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if decision := challenge.CanChallenge(user.ID, body.ChallengedID, existing, now); !decision.Allowed {
		writeError(w, http.StatusConflict, decision.Reason)
		return
	}

	ch, err := challenge.New(user.ID, spider.ID, body.ChallengedID, body.Message, now)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	created, err := s.repo.CreateChallenge(ch)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.engine.PublishChallengeCreated(created, now)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleIncomingChallenges(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	challenges, err := s.repo.ListIncomingChallenges(user.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, challenges)
}

func (s *Server) handleOutgoingChallenges(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	challenges, err := s.repo.ListOutgoingChallenges(user.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, challenges)
}

func (s *Server) handleGetChallenge(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	ch, err := s.repo.GetChallenge(pathID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if ch.ChallengerID != user.ID && ch.ChallengedID != user.ID {
		writeDomainError(w, fmt.Errorf("%w: not your challenge", domain.ErrPermissionDenied))
		return
	}

	resp := map[string]interface{}{"challenge": ch}
	if ch.Status == database.ChallengeAccepted {
		if fightRecord, err := s.repo.GetFightByChallenge(ch.ID); err == nil {
			resp["fight"] = fightRecord
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAcceptChallenge(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	var body struct {
		SpiderID string `json:"spider_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeDomainError(w, err)
		return
	}

	result, err := s.engine.AcceptAndResolve(pathID(r), user.ID, body.SpiderID, time.Now().UTC())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleDeclineChallenge(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	ch, err := s.engine.DeclineChallenge(pathID(r), user.ID, time.Now().UTC())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

// --- fights ---

func (s *Server) handleTodaysFights(w http.ResponseWriter, r *http.Request) {
	today, tomorrow := utils.GetDayBounds(time.Now().UTC())
	fights, err := s.repo.ListFightsBetween(today, tomorrow)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fights)
}

func (s *Server) handleGetFight(w http.ResponseWriter, r *http.Request) {
	fightRecord, err := s.repo.GetFight(pathID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fightRecord)
}

func (s *Server) handleFightOutcome(w http.ResponseWriter, r *http.Request) {
	fightRecord, err := s.repo.GetFight(pathID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats.ClassifyOutcome(fightRecord))
}

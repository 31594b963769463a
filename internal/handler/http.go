package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gymrank/internal/config"
	"github.com/gymrank/internal/domain"
	"github.com/gymrank/internal/media"
	"github.com/gymrank/internal/ranking"
	"github.com/gymrank/internal/service"
	"github.com/gymrank/internal/websocket"
)

// Handler provides HTTP handlers for the GymRank API
type Handler struct {
	accounts *service.AccountService
	records  *service.RecordService
	engine   *ranking.Engine
	media    *media.Store // optional
	hub      *websocket.Hub
	cfg      *config.Config
	logger   *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	accounts *service.AccountService,
	records *service.RecordService,
	engine *ranking.Engine,
	mediaStore *media.Store,
	hub *websocket.Hub,
	cfg *config.Config,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		accounts: accounts,
		records:  records,
		engine:   engine,
		media:    mediaStore,
		hub:      hub,
		cfg:      cfg,
		logger:   logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// Stored proof videos
	r.Get("/uploads/{filename}", h.ServeUpload)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Accounts
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Put("/profile", h.UpdateProfile)
		r.Post("/password/forgot", h.ForgotPassword)
		r.Post("/password/reset", h.ResetPassword)

		// Leaderboards
		r.Get("/leaderboard", h.GetLeaderboard)
		r.Get("/leaderboard/teams", h.GetTeamLeaderboard)
		r.Get("/teams/{team}/members", h.GetTeamMembers)

		// PR operations
		r.Route("/prs", func(r chi.Router) {
			r.Post("/", h.SubmitRecord)
			r.Put("/{recordID}", h.EditRecord)
			r.Delete("/{recordID}", h.DeleteRecord)
		})

		// User views
		r.Route("/users/{username}", func(r chi.Router) {
			r.Get("/", h.GetUserProfile)
			r.Get("/prs", h.GetUserHistory)
			r.Get("/progress", h.GetUserProgress)
		})

		// Proof video feed
		r.Get("/videos", h.GetVideos)

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeDomainError maps domain errors to HTTP statuses. Unexpected errors
// are logged and masked.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsValidationError(err), errors.Is(err, domain.ErrBadResetToken):
		h.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrBadCredentials):
		h.writeError(w, http.StatusUnauthorized, err)
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	case domain.IsConflictError(err):
		h.writeError(w, http.StatusConflict, err)
	default:
		h.logger.Error("request failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternal)
	}
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": h.hub.GetTotalConnections(),
		"subscribers": map[string]int{
			websocket.ChannelDots:  h.hub.GetSubscriberCount(websocket.ChannelDots),
			websocket.ChannelElo:   h.hub.GetSubscriberCount(websocket.ChannelElo),
			websocket.ChannelTeams: h.hub.GetSubscriberCount(websocket.ChannelTeams),
		},
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// Register handles account registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.Validationf("invalid request body"))
		return
	}

	user, err := h.accounts.Register(r.Context(), &req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{Success: true, Data: user})
}

// Login handles credential verification
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.Validationf("invalid request body"))
		return
	}

	user, err := h.accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeSuccess(w, user)
}

// UpdateProfile handles profile updates including renames
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.Validationf("invalid request body"))
		return
	}
	if req.NewUsername == "" {
		req.NewUsername = req.Username
	}

	user, err := h.accounts.UpdateProfile(r.Context(), &req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeSuccess(w, user)
}

// ForgotPassword issues a password reset token. The response is identical
// whether or not the account exists.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier string `json:"identifier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.Validationf("invalid request body"))
		return
	}

	if err := h.accounts.RequestPasswordReset(r.Context(), req.Identifier); err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeSuccess(w, map[string]string{
		"status": "if the account exists, a reset email has been sent",
	})
}

// ResetPassword consumes a reset token and sets a new password
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.Validationf("invalid request body"))
		return
	}

	if err := h.accounts.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeSuccess(w, map[string]string{"status": "password updated"})
}

// GetLeaderboard returns the global leaderboard
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	filter := domain.LeaderboardFilter{
		Gender:  domain.Gender(r.URL.Query().Get("gender")),
		Country: r.URL.Query().Get("country"),
		Mode:    domain.RankingMode(r.URL.Query().Get("mode")),
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			filter.Limit = l
		}
	}
	if filter.Gender != "" && !filter.Gender.Valid() {
		h.writeError(w, http.StatusBadRequest, domain.Validationf("unknown gender filter %q", filter.Gender))
		return
	}

	entries, err := h.engine.BuildLeaderboard(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeSuccess(w, entries)
}

// GetTeamLeaderboard returns team standings by average ELO
func (h *Handler) GetTeamLeaderboard(w http.ResponseWriter, r *http.Request) {
	standings, err := h.engine.BuildTeamLeaderboard(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeSuccess(w, standings)
}

// GetTeamMembers returns one team's roster
func (h *Handler) GetTeamMembers(w http.ResponseWriter, r *http.Request) {
	team := chi.URLParam(r, "team")
	members, err := h.engine.TeamMembers(r.Context(), team)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeSuccess(w, members)
}

// SubmitRecord handles PR submissions. JSON bodies carry an optional
// external proof URL; multipart bodies may attach the proof video itself.
func (h *Handler) SubmitRecord(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeSubmission(w, r)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	result, err := h.records.Submit(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{Success: true, Data: result})
}

// decodeSubmission reads a PR submission from a JSON or multipart body
func (h *Handler) decodeSubmission(w http.ResponseWriter, r *http.Request) (*domain.SubmitRecordRequest, error) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		var req domain.SubmitRecordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, domain.Validationf("invalid request body")
		}
		return &req, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Media.MaxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, domain.Validationf("invalid multipart body")
	}

	weight, err := strconv.ParseFloat(r.FormValue("weight"), 64)
	if err != nil {
		return nil, domain.Validationf("weight must be a number")
	}

	req := &domain.SubmitRecordRequest{
		Username: r.FormValue("username"),
		LiftType: domain.LiftType(r.FormValue("lift_type")),
		Weight:   weight,
		ProofURL: r.FormValue("proof_url"),
	}

	file, header, err := r.FormFile("video")
	if err == http.ErrMissingFile {
		return req, nil
	}
	if err != nil {
		return nil, domain.Validationf("invalid video upload")
	}
	defer file.Close()

	if h.media == nil {
		return nil, domain.Validationf("video uploads are disabled")
	}
	proofURL, err := h.media.Save(file, header)
	if err != nil {
		return nil, err
	}
	req.ProofURL = proofURL
	return req, nil
}

// EditRecord updates a PR owned by the requester
func (h *Handler) EditRecord(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "recordID"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, domain.Validationf("invalid record id"))
		return
	}

	var req domain.EditRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.Validationf("invalid request body"))
		return
	}

	result, err := h.records.Edit(r.Context(), id, &req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeSuccess(w, result)
}

// DeleteRecord removes a PR owned by the requester
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "recordID"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, domain.Validationf("invalid record id"))
		return
	}

	result, err := h.records.Delete(r.Context(), id, r.URL.Query().Get("username"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeSuccess(w, result)
}

// GetUserProfile returns the detailed per-user view
func (h *Handler) GetUserProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.records.Profile(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeSuccess(w, profile)
}

// GetUserHistory returns a user's full lift history
func (h *Handler) GetUserHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.records.History(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeSuccess(w, history)
}

// GetUserProgress returns the weight series for one lift type
func (h *Handler) GetUserProgress(w http.ResponseWriter, r *http.Request) {
	liftType := domain.LiftType(r.URL.Query().Get("lift_type"))
	points, err := h.records.Progress(r.Context(), chi.URLParam(r, "username"), liftType)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeSuccess(w, points)
}

// GetVideos returns the most recent proof videos
func (h *Handler) GetVideos(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	videos, err := h.records.RecentVideos(r.Context(), limit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeSuccess(w, videos)
}

// ServeUpload streams a stored proof video
func (h *Handler) ServeUpload(w http.ResponseWriter, r *http.Request) {
	if h.media == nil {
		h.writeError(w, http.StatusNotFound, domain.ErrRecordNotFound)
		return
	}

	path, err := h.media.Open(chi.URLParam(r, "filename"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	http.ServeFile(w, r, path)
}

package httphandler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/ericfisherdev/jirastopwatch/internal/application"
	"github.com/ericfisherdev/jirastopwatch/internal/domain/model"
	"github.com/ericfisherdev/jirastopwatch/internal/domain/port/driven"
)

// Handler is the HTTP driving adapter the UI talks to.
type Handler struct {
	coord    *application.TimerCoordinator
	prefs    *application.Preferences
	session  *application.SessionService
	trackers *application.TrackerClientProvider
	logger   *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	coord *application.TimerCoordinator,
	prefs *application.Preferences,
	session *application.SessionService,
	trackers *application.TrackerClientProvider,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		coord:    coord,
		prefs:    prefs,
		session:  session,
		trackers: trackers,
		logger:   logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/timers", h.ListTimers)
	mux.HandleFunc("POST /api/v1/timers/pause-active", h.PauseActive)
	mux.HandleFunc("PUT /api/v1/timers/count", h.SetCount)
	mux.HandleFunc("POST /api/v1/timers/{slot}/start", h.StartTimer)
	mux.HandleFunc("POST /api/v1/timers/{slot}/pause", h.PauseTimer)
	mux.HandleFunc("PUT /api/v1/timers/{slot}/issue", h.SetIssue)
	mux.HandleFunc("PUT /api/v1/timers/{slot}/elapsed", h.SetElapsed)
	mux.HandleFunc("PUT /api/v1/timers/{slot}/comment", h.SetComment)
	mux.HandleFunc("GET /api/v1/events", h.Events)
	mux.HandleFunc("GET /api/v1/session", h.GetSession)
	mux.HandleFunc("POST /api/v1/session", h.Login)
	mux.HandleFunc("DELETE /api/v1/session", h.Logout)
	mux.HandleFunc("GET /api/v1/settings", h.GetSettings)
	mux.HandleFunc("PUT /api/v1/settings", h.UpdateSettings)
	mux.HandleFunc("POST /api/v1/settings/save", h.SaveSettings)
	mux.HandleFunc("GET /api/v1/issues/{key}", h.GetIssue)
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// ListTimers returns every timer slot.
func (h *Handler) ListTimers(w http.ResponseWriter, r *http.Request) {
	h.writeTimers(w, r)
}

// StartTimer starts one slot and pauses whichever other slot was running.
func (h *Handler) StartTimer(w http.ResponseWriter, r *http.Request) {
	slot, ok := slotParam(w, r)
	if !ok {
		return
	}
	if err := h.coord.RequestStart(r.Context(), slot); err != nil {
		h.writeDomainError(w, err, "start timer", "slot", slot)
		return
	}
	h.writeTimers(w, r)
}

// PauseTimer pauses one slot.
func (h *Handler) PauseTimer(w http.ResponseWriter, r *http.Request) {
	slot, ok := slotParam(w, r)
	if !ok {
		return
	}
	if err := h.coord.RequestPause(r.Context(), slot); err != nil {
		h.writeDomainError(w, err, "pause timer", "slot", slot)
		return
	}
	h.writeTimers(w, r)
}

// PauseActive pauses whichever slot is running. The UI calls it when the
// window loses focus and PauseActiveTimer is on.
func (h *Handler) PauseActive(w http.ResponseWriter, r *http.Request) {
	paused, err := h.coord.PauseActive(r.Context())
	if err != nil {
		h.writeDomainError(w, err, "pause active timer")
		return
	}

	resp := PauseActiveResponse{}
	if paused >= 0 {
		resp.PausedSlot = &paused
	}
	writeJSON(w, http.StatusOK, resp)
}

// SetIssue assigns an issue key to a slot. An empty key unassigns it.
func (h *Handler) SetIssue(w http.ResponseWriter, r *http.Request) {
	slot, ok := slotParam(w, r)
	if !ok {
		return
	}
	var req SetIssueRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.coord.SetIssueKey(r.Context(), slot, req.IssueKey); err != nil {
		h.writeDomainError(w, err, "set issue key", "slot", slot, "issue", req.IssueKey)
		return
	}
	h.writeTimers(w, r)
}

// SetElapsed overwrites a paused slot's elapsed time.
func (h *Handler) SetElapsed(w http.ResponseWriter, r *http.Request) {
	slot, ok := slotParam(w, r)
	if !ok {
		return
	}
	var req SetElapsedRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ElapsedSeconds < 0 {
		writeError(w, http.StatusBadRequest, "elapsed_seconds must not be negative")
		return
	}
	if err := h.coord.SetElapsed(r.Context(), slot, time.Duration(req.ElapsedSeconds)*time.Second); err != nil {
		h.writeDomainError(w, err, "set elapsed", "slot", slot)
		return
	}
	h.writeTimers(w, r)
}

// SetComment sets a slot's worklog comment.
func (h *Handler) SetComment(w http.ResponseWriter, r *http.Request) {
	slot, ok := slotParam(w, r)
	if !ok {
		return
	}
	var req SetCommentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.coord.SetComment(r.Context(), slot, req.Comment); err != nil {
		h.writeDomainError(w, err, "set comment", "slot", slot)
		return
	}
	h.writeTimers(w, r)
}

// SetCount resizes the timer set and records the new count in the settings.
func (h *Handler) SetCount(w http.ResponseWriter, r *http.Request) {
	var req SetCountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Count < 1 || req.Count > application.MaxSlots {
		writeError(w, http.StatusBadRequest, "count must be between 1 and "+strconv.Itoa(application.MaxSlots))
		return
	}

	removed, err := h.coord.Resize(r.Context(), req.Count)
	if err != nil {
		h.writeDomainError(w, err, "resize timers", "count", req.Count)
		return
	}
	h.prefs.Update(func(s *model.Settings) { s.IssueCount = req.Count })

	views, err := h.coord.Snapshots(r.Context())
	if err != nil {
		h.writeDomainError(w, err, "list timers")
		return
	}

	resp := ResizeResponse{
		Timers:  toTimerResponses(views),
		Removed: make([]RemovedTimerResponse, 0, len(removed)),
	}
	for _, s := range removed {
		resp.Removed = append(resp.Removed, toRemovedTimerResponse(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetSession reports whether a tracker session is active.
func (h *Handler) GetSession(w http.ResponseWriter, _ *http.Request) {
	username := h.session.Username()
	writeJSON(w, http.StatusOK, SessionResponse{LoggedIn: username != "", Username: username})
}

// Login authenticates against the tracker.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	if err := h.session.Login(r.Context(), req.BaseURL, req.Username, req.Password, req.Remember); err != nil {
		h.writeDomainError(w, err, "login", "username", req.Username)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{LoggedIn: true, Username: req.Username})
}

// Logout drops the tracker session.
func (h *Handler) Logout(w http.ResponseWriter, _ *http.Request) {
	h.session.Logout()
	w.WriteHeader(http.StatusNoContent)
}

// GetSettings returns the current settings without the password.
func (h *Handler) GetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toSettingsResponse(h.prefs.Get()))
}

// UpdateSettings applies a partial settings update in memory. Changes reach
// the backend on the next save.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettingsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var saveTimerState model.SaveTimerSetting
	if req.SaveTimerState != nil {
		parsed, err := model.ParseSaveTimerSetting(*req.SaveTimerState)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		saveTimerState = parsed
	}

	if req.TimerEditable != nil {
		if err := h.coord.SetTimerEditable(r.Context(), *req.TimerEditable); err != nil {
			h.writeDomainError(w, err, "set timer editable")
			return
		}
	}

	updated := h.prefs.Update(func(s *model.Settings) {
		if req.JiraBaseURL != nil {
			s.JiraBaseURL = strings.TrimSpace(*req.JiraBaseURL)
		}
		if req.AlwaysOnTop != nil {
			s.AlwaysOnTop = *req.AlwaysOnTop
		}
		if req.MinimizeToTray != nil {
			s.MinimizeToTray = *req.MinimizeToTray
		}
		if req.PauseActiveTimer != nil {
			s.PauseActiveTimer = *req.PauseActiveTimer
		}
		if req.TimerEditable != nil {
			s.TimerEditable = *req.TimerEditable
		}
		if req.SaveTimerState != nil {
			s.SaveTimerState = saveTimerState
		}
		if req.CurrentFilter != nil {
			s.CurrentFilter = *req.CurrentFilter
		}
	})

	writeJSON(w, http.StatusOK, toSettingsResponse(updated))
}

// SaveSettings persists the settings together with the current timer
// snapshot.
func (h *Handler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}

	issues, err := h.coord.Export(r.Context())
	if err != nil {
		h.writeDomainError(w, err, "export timers")
		return
	}
	if err := h.prefs.Persist(r.Context(), issues, func() bool { return req.KeepElapsed }); err != nil {
		h.logger.Error("failed to save settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetIssue looks an issue up on the tracker.
func (h *Handler) GetIssue(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.PathValue("key"))
	if key == "" {
		writeError(w, http.StatusBadRequest, "issue key is required")
		return
	}

	client := h.trackers.Get()
	if client == nil {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}

	issue, err := client.FetchIssue(r.Context(), key)
	if err != nil {
		h.writeDomainError(w, err, "fetch issue", "issue", key)
		return
	}
	writeJSON(w, http.StatusOK, toIssueResponse(issue))
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Time:     time.Now().UTC().Format(time.RFC3339),
		LoggedIn: h.trackers.HasClient(),
	})
}

func (h *Handler) writeTimers(w http.ResponseWriter, r *http.Request) {
	views, err := h.coord.Snapshots(r.Context())
	if err != nil {
		h.writeDomainError(w, err, "list timers")
		return
	}
	writeJSON(w, http.StatusOK, toTimerResponses(views))
}

// writeDomainError maps application and domain errors onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error, op string, args ...any) {
	switch {
	case errors.Is(err, model.ErrInvalidSlot):
		writeError(w, http.StatusNotFound, "timer slot not found")
	case errors.Is(err, model.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, driven.ErrAuth):
		writeError(w, http.StatusUnauthorized, "tracker authentication failed")
	case errors.Is(err, driven.ErrIssueNotFound):
		writeError(w, http.StatusNotFound, "issue not found")
	case errors.Is(err, application.ErrCoordinatorStopped):
		writeError(w, http.StatusServiceUnavailable, "shutting down")
	default:
		h.logger.Error("failed to "+op, append(args, "error", err)...)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// slotParam parses the {slot} path value, writing a 400 on failure.
func slotParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	slot, err := strconv.Atoi(r.PathValue("slot"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid slot")
		return 0, false
	}
	return slot, true
}

// decodeBody decodes the JSON request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

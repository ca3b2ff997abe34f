package httphandler

import (
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/ericfisherdev/jirastopwatch/internal/application"
	"github.com/ericfisherdev/jirastopwatch/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// TimerResponse is the JSON representation of one timer slot.
type TimerResponse struct {
	Slot              int    `json:"slot"`
	IssueKey          string `json:"issue_key"`
	Running           bool   `json:"running"`
	ElapsedSeconds    int64  `json:"elapsed_seconds"`
	UnreportedSeconds int64  `json:"unreported_seconds"`
	Display           string `json:"display"`
	Comment           string `json:"comment"`
}

// RemovedTimerResponse describes a slot dropped by a resize.
type RemovedTimerResponse struct {
	IssueKey       string `json:"issue_key"`
	ElapsedSeconds int64  `json:"elapsed_seconds"`
	Display        string `json:"display"`
}

// ResizeResponse is returned by the timer count endpoint.
type ResizeResponse struct {
	Timers  []TimerResponse        `json:"timers"`
	Removed []RemovedTimerResponse `json:"removed"`
}

// PauseActiveResponse reports which slot, if any, was paused.
type PauseActiveResponse struct {
	PausedSlot *int `json:"paused_slot"`
}

// EventResponse is the payload of one server-sent event.
type EventResponse struct {
	Type           string `json:"type"`
	Slot           int    `json:"slot"`
	IssueKey       string `json:"issue_key,omitempty"`
	Running        bool   `json:"running"`
	ElapsedSeconds int64  `json:"elapsed_seconds"`
	Display        string `json:"display,omitempty"`
	Message        string `json:"message,omitempty"`
	At             string `json:"at"`
}

// SettingsResponse is the JSON representation of the user settings. The
// password itself is never returned.
type SettingsResponse struct {
	JiraBaseURL         string `json:"jira_base_url"`
	AlwaysOnTop         bool   `json:"always_on_top"`
	MinimizeToTray      bool   `json:"minimize_to_tray"`
	PauseActiveTimer    bool   `json:"pause_active_timer"`
	IssueCount          int    `json:"issue_count"`
	TimerEditable       bool   `json:"timer_editable"`
	SaveTimerState      string `json:"save_timer_state"`
	CurrentFilter       int    `json:"current_filter"`
	FirstRun            bool   `json:"first_run"`
	Username            string `json:"username"`
	RememberCredentials bool   `json:"remember_credentials"`
	HasPassword         bool   `json:"has_password"`
}

// UpdateSettingsRequest is the JSON body for the settings update endpoint.
// Absent fields are left unchanged.
type UpdateSettingsRequest struct {
	JiraBaseURL      *string `json:"jira_base_url"`
	AlwaysOnTop      *bool   `json:"always_on_top"`
	MinimizeToTray   *bool   `json:"minimize_to_tray"`
	PauseActiveTimer *bool   `json:"pause_active_timer"`
	TimerEditable    *bool   `json:"timer_editable"`
	SaveTimerState   *string `json:"save_timer_state"`
	CurrentFilter    *int    `json:"current_filter"`
}

// SaveRequest is the JSON body for the explicit save endpoint. KeepElapsed
// answers the "keep timer state?" question when SaveTimerState is "ask".
type SaveRequest struct {
	KeepElapsed bool `json:"keep_elapsed"`
}

// LoginRequest is the JSON body for the session endpoint.
type LoginRequest struct {
	BaseURL  string `json:"base_url"`
	Username string `json:"username"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

// SessionResponse describes the current tracker session.
type SessionResponse struct {
	LoggedIn bool   `json:"logged_in"`
	Username string `json:"username"`
}

// SetIssueRequest is the JSON body for assigning an issue to a slot.
type SetIssueRequest struct {
	IssueKey string `json:"issue_key"`
}

// SetElapsedRequest is the JSON body for editing a slot's elapsed time.
type SetElapsedRequest struct {
	ElapsedSeconds int64 `json:"elapsed_seconds"`
}

// SetCommentRequest is the JSON body for a slot's worklog comment.
type SetCommentRequest struct {
	Comment string `json:"comment"`
}

// SetCountRequest is the JSON body for resizing the timer set.
type SetCountRequest struct {
	Count int `json:"count"`
}

// IssueResponse is the JSON representation of a tracker issue.
type IssueResponse struct {
	Key              string `json:"key"`
	Summary          string `json:"summary"`
	Status           string `json:"status"`
	TimeSpentSeconds int64  `json:"time_spent_seconds"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Time     string `json:"time"`
	LoggedIn bool   `json:"logged_in"`
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}

// toTimerResponse converts a coordinator slot view to its JSON representation.
func toTimerResponse(v application.SlotView) TimerResponse {
	return TimerResponse{
		Slot:              v.Slot,
		IssueKey:          v.IssueKey,
		Running:           v.Running,
		ElapsedSeconds:    seconds(v.Elapsed),
		UnreportedSeconds: seconds(v.Unreported),
		Display:           v.Display,
		Comment:           v.Comment,
	}
}

func toTimerResponses(views []application.SlotView) []TimerResponse {
	resp := make([]TimerResponse, 0, len(views))
	for _, v := range views {
		resp = append(resp, toTimerResponse(v))
	}
	return resp
}

func toRemovedTimerResponse(s model.TimerSnapshot) RemovedTimerResponse {
	return RemovedTimerResponse{
		IssueKey:       s.IssueKey,
		ElapsedSeconds: seconds(s.Elapsed),
		Display:        model.FormatElapsed(s.Elapsed),
	}
}

func toEventResponse(ev application.Event) EventResponse {
	return EventResponse{
		Type:           string(ev.Type),
		Slot:           ev.Slot,
		IssueKey:       ev.IssueKey,
		Running:        ev.Running,
		ElapsedSeconds: seconds(ev.Elapsed),
		Display:        ev.Text,
		Message:        ev.Message,
		At:             ev.At.UTC().Format(time.RFC3339),
	}
}

// toSettingsResponse converts settings to their JSON representation.
func toSettingsResponse(s model.Settings) SettingsResponse {
	return SettingsResponse{
		JiraBaseURL:         s.JiraBaseURL,
		AlwaysOnTop:         s.AlwaysOnTop,
		MinimizeToTray:      s.MinimizeToTray,
		PauseActiveTimer:    s.PauseActiveTimer,
		IssueCount:          s.IssueCount,
		TimerEditable:       s.TimerEditable,
		SaveTimerState:      string(s.SaveTimerState),
		CurrentFilter:       s.CurrentFilter,
		FirstRun:            s.FirstRun,
		Username:            s.Username,
		RememberCredentials: s.RememberCredentials,
		HasPassword:         s.Password != "",
	}
}

func toIssueResponse(issue model.Issue) IssueResponse {
	return IssueResponse{
		Key:              issue.Key,
		Summary:          issue.Summary,
		Status:           issue.Status,
		TimeSpentSeconds: seconds(issue.TimeSpent),
	}
}

// Package httpapi is the thin HTTP edge over the scheduler and the task
// store. Every endpoint is a POST accepting and returning JSON; errors
// use the shape {"error":{"kind","message","field"}}.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/taskhive/internal/cron"
	"github.com/nextlevelbuilder/taskhive/internal/scheduler"
	"github.com/nextlevelbuilder/taskhive/internal/store"
	"github.com/nextlevelbuilder/taskhive/internal/task"
)

// Handler serves the scheduler HTTP surface.
type Handler struct {
	sched   *scheduler.Scheduler
	store   *store.TaskStore
	token   string // expected bearer token (empty = no auth)
	limiter *RateLimiter
}

// NewHandler wires the HTTP surface. limiter may be nil.
func NewHandler(sched *scheduler.Scheduler, st *store.TaskStore, token string, limiter *RateLimiter) *Handler {
	return &Handler{sched: sched, store: st, token: token, limiter: limiter}
}

// Routes registers all endpoints on a fresh mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/scheduler_tick", h.loopback(h.handleTick))
	mux.HandleFunc("/scheduler_task_run", h.authed(h.handleRun))
	mux.HandleFunc("/scheduler_task_cancel", h.authed(h.handleCancel))
	mux.HandleFunc("/scheduler_task_create", h.authed(h.handleCreate))
	mux.HandleFunc("/scheduler_task_update", h.authed(h.handleUpdate))
	mux.HandleFunc("/scheduler_task_delete", h.authed(h.handleDelete))
	mux.HandleFunc("/scheduler_tasks_list", h.authed(h.handleList))
	mux.HandleFunc("/scheduler_task_get", h.authed(h.handleGet))
	mux.HandleFunc("/scheduler_task_runs", h.authed(h.handleRuns))
	mux.HandleFunc("/scheduler_status", h.authed(h.handleStatus))
	return mux
}

// --- middleware ---

func (h *Handler) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeAuthError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "POST only")
			return
		}
		if !tokenMatch(extractBearerToken(r), h.token) {
			writeAuthError(w, http.StatusUnauthorized, "Unauthorized", "missing or invalid bearer token")
			return
		}
		if h.limiter != nil && !h.limiter.Allow(clientKey(r)) {
			writeAuthError(w, http.StatusTooManyRequests, "RateLimited", "too many requests")
			return
		}
		next(w, r)
	}
}

// loopback restricts an endpoint to direct local callers (the periodic
// system driver). Never conflate with the authenticated run endpoint.
func (h *Handler) loopback(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeAuthError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "POST only")
			return
		}
		if !isLoopback(r) {
			slog.Warn("loopback endpoint rejected remote caller", "path", r.URL.Path, "remote", r.RemoteAddr)
			writeAuthError(w, http.StatusForbidden, "Forbidden", "loopback only")
			return
		}
		next(w, r)
	}
}

// --- handlers ---

func (h *Handler) handleTick(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WindowSeconds int `json:"window_seconds"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	dispatched, err := h.sched.Tick(time.Duration(req.WindowSeconds) * time.Second)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "dispatched": dispatched})
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	id, ok := decodeUUID(w, r)
	if !ok {
		return
	}
	if err := h.sched.Run(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := decodeUUID(w, r)
	if !ok {
		return
	}
	if err := h.sched.Cancel(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type createRequest struct {
	Type          task.Type          `json:"type"`
	Name          string             `json:"name"`
	Prompt        string             `json:"prompt"`
	SystemPrompt  string             `json:"system_prompt"`
	Attachments   []string           `json:"attachments"`
	CtxPlanning   task.Switch        `json:"ctx_planning"`
	CtxReasoning  task.Switch        `json:"ctx_reasoning"`
	CtxDeepSearch task.Switch        `json:"ctx_deep_search"`
	MaxRunSeconds int                `json:"max_run_seconds"`
	Schedule      *task.ScheduleSpec `json:"schedule"`
	Token         string             `json:"token"`
	Plan          *task.Plan         `json:"plan"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !task.ValidType(req.Type) {
		writeError(w, task.FieldErrf(task.KindBadField, "type", "unknown task type %q", req.Type))
		return
	}

	t := &task.Task{
		Type:          req.Type,
		Name:          req.Name,
		Prompt:        req.Prompt,
		SystemPrompt:  req.SystemPrompt,
		Attachments:   req.Attachments,
		CtxPlanning:   defaultSwitch(req.CtxPlanning, task.SwitchAuto),
		CtxReasoning:  defaultSwitch(req.CtxReasoning, task.SwitchAuto),
		CtxDeepSearch: defaultSwitch(req.CtxDeepSearch, task.SwitchOff),
		MaxRunSeconds: req.MaxRunSeconds,
		Schedule:      req.Schedule,
		Token:         req.Token,
		Plan:          req.Plan,
	}

	created, err := h.store.Add(t)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": taskView(created)})
}

type updateRequest struct {
	UUID          uuid.UUID          `json:"uuid"`
	Name          *string            `json:"name"`
	Prompt        *string            `json:"prompt"`
	SystemPrompt  *string            `json:"system_prompt"`
	Attachments   *[]string          `json:"attachments"`
	CtxPlanning   *task.Switch       `json:"ctx_planning"`
	CtxReasoning  *task.Switch       `json:"ctx_reasoning"`
	CtxDeepSearch *task.Switch       `json:"ctx_deep_search"`
	MaxRunSeconds *int               `json:"max_run_seconds"`
	State         *task.State        `json:"state"`
	Schedule      *task.ScheduleSpec `json:"schedule"`
	Token         *string            `json:"token"`
	Plan          *task.Plan         `json:"plan"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UUID == uuid.Nil {
		writeError(w, task.FieldErrf(task.KindMissingField, "uuid", "uuid is required"))
		return
	}

	updated, err := h.store.Update(req.UUID, func(t *task.Task) error {
		if req.State != nil {
			if !task.CanUserSet(t.State, *req.State) {
				return task.Errf(task.KindInvalidTransition, "cannot set state %s from %s", *req.State, t.State)
			}
			t.State = *req.State
		}
		if req.Name != nil {
			t.Name = *req.Name
		}
		if req.Prompt != nil {
			t.Prompt = *req.Prompt
		}
		if req.SystemPrompt != nil {
			t.SystemPrompt = *req.SystemPrompt
		}
		if req.Attachments != nil {
			t.Attachments = *req.Attachments
		}
		if req.CtxPlanning != nil {
			t.CtxPlanning = *req.CtxPlanning
		}
		if req.CtxReasoning != nil {
			t.CtxReasoning = *req.CtxReasoning
		}
		if req.CtxDeepSearch != nil {
			t.CtxDeepSearch = *req.CtxDeepSearch
		}
		if req.MaxRunSeconds != nil {
			t.MaxRunSeconds = *req.MaxRunSeconds
		}
		if req.Schedule != nil {
			t.Schedule = req.Schedule
		}
		if req.Token != nil {
			t.Token = *req.Token
		}
		if req.Plan != nil {
			t.Plan = req.Plan
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": taskView(updated)})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := decodeUUID(w, r)
	if !ok {
		return
	}
	if err := h.store.Remove(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type listRequest struct {
	Filter struct {
		Type  task.Type  `json:"type"`
		State task.State `json:"state"`
	} `json:"filter"`
	Sort string `json:"sort"` // name (default), created_at, updated_at
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	if !decodeBody(w, r, &req) {
		return
	}

	tasks := h.store.List()
	filtered := tasks[:0]
	for _, t := range tasks {
		if req.Filter.Type != "" && t.Type != req.Filter.Type {
			continue
		}
		if req.Filter.State != "" && t.State != req.Filter.State {
			continue
		}
		filtered = append(filtered, t)
	}

	sort.Slice(filtered, func(i, j int) bool {
		switch req.Sort {
		case "created_at":
			return filtered[i].CreatedAt.Before(filtered[j].CreatedAt)
		case "updated_at":
			return filtered[i].UpdatedAt.Before(filtered[j].UpdatedAt)
		default:
			return filtered[i].Name < filtered[j].Name
		}
	})

	views := make([]*taskJSON, len(filtered))
	for i, t := range filtered {
		views[i] = taskView(t)
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": views})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := decodeUUID(w, r)
	if !ok {
		return
	}
	t, err := h.store.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": taskView(t)})
}

func (h *Handler) handleRuns(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UUID  uuid.UUID `json:"uuid"`
		Limit int       `json:"limit"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": h.sched.RunLog(req.UUID, req.Limit)})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sched.Status())
}

// --- helpers ---

// taskJSON is the response shape: the task plus the read-only
// schedule_display rendering for scheduled tasks.
type taskJSON struct {
	*task.Task
	ScheduleDisplay string `json:"schedule_display,omitempty"`
}

func taskView(t *task.Task) *taskJSON {
	v := &taskJSON{Task: t}
	if t.Type == task.TypeScheduled && t.Schedule != nil {
		v.ScheduleDisplay = cron.Describe(t.Schedule.Schedule)
	}
	return v
}

func defaultSwitch(v, def task.Switch) task.Switch {
	if v == "" {
		return def
	}
	return v
}

// decodeBody parses the JSON request body. An empty body decodes to the
// zero request. Returns false after writing the error response.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		writeError(w, task.FieldErrf(task.KindBadField, "body", "invalid JSON: %v", err))
		return false
	}
	return true
}

func decodeUUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	var req struct {
		UUID uuid.UUID `json:"uuid"`
	}
	if !decodeBody(w, r, &req) {
		return uuid.Nil, false
	}
	if req.UUID == uuid.Nil {
		writeError(w, task.FieldErrf(task.KindMissingField, "uuid", "uuid is required"))
		return uuid.Nil, false
	}
	return req.UUID, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	te := task.AsError(err)
	writeJSON(w, te.HTTPStatus(), map[string]any{"error": te})
}

func writeAuthError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, map[string]any{
		"error": &task.Error{Kind: kind, Message: message},
	})
}

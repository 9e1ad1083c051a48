package serve

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/forgeworks/teamhub"
)

// ErrorResponse is returned on every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeErr translates a teamhub.Error's Kind into an HTTP status and
// writes it as an ErrorResponse, per spec.md §6/§7's error-kind table.
func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch teamhub.KindOf(err) {
	case teamhub.KindValidation:
		status = http.StatusBadRequest
	case teamhub.KindNotFound:
		status = http.StatusNotFound
	case teamhub.KindConflict:
		status = http.StatusConflict
	case teamhub.KindDriverUnavailable:
		status = http.StatusServiceUnavailable
	case teamhub.KindDriverFailure:
		status = http.StatusBadGateway
	case teamhub.KindTransient:
		status = http.StatusTooManyRequests
	case teamhub.KindOverflowClosed:
		status = http.StatusGone
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// principalFrom resolves the caller from the request context, set by
// requireAuth. Handlers registered behind requireAuth may call this
// unconditionally.
func principalFrom(r *http.Request) teamhub.Principal {
	p, _ := r.Context().Value(principalCtxKey{}).(teamhub.Principal)
	return p
}

type principalCtxKey struct{}

// requireAuth wraps handler with bearer-token authentication via
// s.auth, the same TokenAuthenticator SubscriptionMux uses, per
// spec.md §6's "REST and WS share one auth surface" note.
func (s *Server) requireAuth(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "missing bearer token"})
			return
		}
		p, ok := s.auth.Authenticate(token)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			return
		}
		ctx := context.WithValue(r.Context(), principalCtxKey{}, p)
		handler(w, r.WithContext(ctx))
	}
}

// --- Team CRUD ---

type createTeamRequest struct {
	Name     string `json:"name"`
	Repo     struct {
		URL string `json:"url"`
	} `json:"repo"`
	Agents   []teamhub.AgentSpec `json:"agents"`
	Channels []string            `json:"channels,omitempty"`
}

type teamResponse struct {
	ID        string             `json:"id"`
	TenantID  string             `json:"tenantId"`
	Name      string             `json:"name"`
	RepoURL   string             `json:"repoUrl"`
	Channels  []string           `json:"channels"`
	Status    teamhub.TeamStatus `json:"status"`
	ChatPort  int                `json:"chatPort"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
	Agents    []agentResponse    `json:"agents"`
}

type agentResponse struct {
	ID              string              `json:"id"`
	Role            string              `json:"role"`
	Model           string              `json:"model,omitempty"`
	Runtime         string              `json:"runtime,omitempty"`
	Status          teamhub.AgentStatus `json:"status"`
	LastHeartbeatAt *time.Time          `json:"lastHeartbeatAt,omitempty"`
}

func teamToResponse(v teamhub.TeamView) teamResponse {
	agents := make([]agentResponse, 0, len(v.Agents))
	for _, a := range v.Agents {
		ar := agentResponse{ID: a.ID, Role: a.Role, Model: a.Model, Runtime: a.Runtime, Status: a.Status}
		if a.HasHeartbeat {
			t := a.LastHeartbeatAt
			ar.LastHeartbeatAt = &t
		}
		agents = append(agents, ar)
	}
	return teamResponse{
		ID: v.ID, TenantID: v.TenantID, Name: v.Name, RepoURL: v.RepoURL,
		Channels: v.Channels, Status: v.Status, ChatPort: v.ChatPort,
		CreatedAt: v.CreatedAt, UpdatedAt: v.UpdatedAt, Agents: agents,
	}
}

func (s *Server) handleCreateTeam(w http.ResponseWriter, r *http.Request) {
	var req createTeamRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}
	spec := teamhub.TeamSpec{
		Name:     req.Name,
		RepoURL:  req.Repo.URL,
		Agents:   req.Agents,
		Channels: req.Channels,
	}
	v, err := s.lifecycle.CreateTeam(r.Context(), principalFrom(r), spec)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, teamToResponse(v))
}

func (s *Server) handleListTeams(w http.ResponseWriter, r *http.Request) {
	views := s.lifecycle.ListTeams(principalFrom(r))
	resp := make([]teamResponse, 0, len(views))
	for _, v := range views {
		resp = append(resp, teamToResponse(v))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetTeam(w http.ResponseWriter, r *http.Request) {
	v, err := s.lifecycle.GetTeam(principalFrom(r), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, teamToResponse(v))
}

type patchTeamRequest struct {
	Name     *string  `json:"name,omitempty"`
	Channels []string `json:"channels,omitempty"`
}

func (s *Server) handleUpdateTeam(w http.ResponseWriter, r *http.Request) {
	var req patchTeamRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}
	patch := teamhub.TeamPatch{Name: req.Name, Channels: req.Channels}
	v, err := s.lifecycle.UpdateTeam(principalFrom(r), r.PathValue("id"), patch)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, teamToResponse(v))
}

func (s *Server) handleDeleteTeam(w http.ResponseWriter, r *http.Request) {
	if err := s.lifecycle.DeleteTeam(r.Context(), principalFrom(r), r.PathValue("id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStartTeam(w http.ResponseWriter, r *http.Request) {
	if err := s.lifecycle.StartTeam(r.Context(), principalFrom(r), r.PathValue("id")); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "starting"})
}

func (s *Server) handleStopTeam(w http.ResponseWriter, r *http.Request) {
	if err := s.lifecycle.StopTeam(r.Context(), principalFrom(r), r.PathValue("id")); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

// --- Agents ---

func (s *Server) handleAddAgent(w http.ResponseWriter, r *http.Request) {
	var spec teamhub.AgentSpec
	if err := decodeJSON(r, &spec); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}
	v, err := s.lifecycle.AddAgent(r.Context(), principalFrom(r), r.PathValue("id"), spec)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, agentResponse{ID: v.ID, Role: v.Role, Model: v.Model, Runtime: v.Runtime, Status: v.Status})
}

func (s *Server) handleRemoveAgent(w http.ResponseWriter, r *http.Request) {
	err := s.lifecycle.RemoveAgent(r.Context(), principalFrom(r), r.PathValue("id"), r.PathValue("aid"))
	if err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Sidecar control ---

type sidecarRequest struct {
	Message string   `json:"message,omitempty"`
	Command []string `json:"command,omitempty"`
}

// handleSidecar dispatches nudge/interrupt/directive/exec to
// s.sidecar after confirming the caller's tenant owns teamId and that
// agentId is on that team's roster,
// per spec.md §4.4's "caller translates typed errors to a status"
// contract.
func (s *Server) handleSidecar(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		teamID, agentID := r.PathValue("id"), r.PathValue("aid")
		team, err := s.lifecycle.GetTeam(principalFrom(r), teamID)
		if err != nil {
			writeErr(w, err)
			return
		}
		known := false
		for _, a := range team.Agents {
			known = known || a.ID == agentID
		}
		if !known {
			writeErr(w, teamhub.NewError(teamhub.KindNotFound, "handleSidecar", fmt.Sprintf("agent %q not found", agentID), nil))
			return
		}

		var req sidecarRequest
		if r.ContentLength != 0 {
			if err := decodeJSON(r, &req); err != nil {
				writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
				return
			}
		}

		if s.sidecar == nil {
			writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "sidecar control not configured"})
			return
		}

		switch action {
		case "nudge":
			err = s.sidecar.Nudge(r.Context(), teamID, agentID, req.Message)
		case "interrupt":
			err = s.sidecar.Interrupt(r.Context(), teamID, agentID)
		case "directive":
			err = s.sidecar.Directive(r.Context(), teamID, agentID, req.Message)
		case "exec":
			err = s.sidecar.Exec(r.Context(), teamID, agentID, req.Command)
		default:
			err = teamhub.NewError(teamhub.KindValidation, "handleSidecar", fmt.Sprintf("unknown action %q", action), nil)
		}
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// --- Channel messages ---

type messageResponse struct {
	Time    time.Time `json:"time"`
	Nick    string    `json:"nick"`
	Text    string    `json:"text"`
	Tag     string    `json:"tag,omitempty"`
	TagBody string    `json:"tagBody,omitempty"`
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	teamID, channel := r.PathValue("id"), r.PathValue("name")
	if _, err := s.lifecycle.GetTeam(principalFrom(r), teamID); err != nil {
		writeErr(w, err)
		return
	}
	msgs := s.router.RecentMessages(teamID, channel)
	resp := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		resp = append(resp, messageResponse{Time: m.Time, Nick: m.Nick, Text: m.Text, Tag: m.Tag, TagBody: m.TagBody})
	}
	writeJSON(w, http.StatusOK, resp)
}

type postMessageRequest struct {
	Nick string `json:"nick,omitempty"`
	Text string `json:"text"`
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	teamID, channel := r.PathValue("id"), r.PathValue("name")
	if _, err := s.lifecycle.GetTeam(principalFrom(r), teamID); err != nil {
		writeErr(w, err)
		return
	}
	var req postMessageRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "text is required"})
		return
	}
	nick := req.Nick
	if nick == "" {
		nick = "operator"
	}
	s.router.Route(teamID, channel, nick, req.Text, time.Now())
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "routed"})
}

// --- Heartbeat (auth-exempt) ---

// handleHeartbeat is registered without requireAuth: the calling
// process lives inside the team's own container network and cannot
// hold a tenant bearer token, per spec.md §4.5.
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	s.lifecycle.Heartbeat(r.PathValue("teamId"), r.PathValue("agentId"), time.Now())
	w.WriteHeader(http.StatusOK)
}

// --- Templates ---

type templateRequest struct {
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Agents      []teamhub.AgentSpec `json:"agents"`
	Env         map[string]string   `json:"env,omitempty"`
	Tags        []string            `json:"tags,omitempty"`
}

type templateResponse struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Builtin     bool                `json:"builtin"`
	Agents      []teamhub.AgentSpec `json:"agents"`
	Env         map[string]string   `json:"env,omitempty"`
	Tags        []string            `json:"tags,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
}

func templateToResponse(t teamhub.TemplateRow) templateResponse {
	return templateResponse{
		ID: t.ID, Name: t.Name, Description: t.Description, Builtin: t.Builtin,
		Agents: t.Agents, Env: t.Env, Tags: t.Tags, CreatedAt: t.CreatedAt,
	}
}

func (s *Server) templateStore() teamhub.TemplateStore {
	return s.lifecycle.TemplateStore()
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	store := s.templateStore()
	if store == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "template store not configured"})
		return
	}
	var req templateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}
	p := principalFrom(r)
	tpl := teamhub.Template{
		ID: uuid.New().String(), TenantID: p.TenantID, Name: req.Name,
		Description: req.Description, Agents: req.Agents, Env: req.Env,
		Tags: req.Tags, CreatedAt: time.Now(),
	}
	if err := teamhub.ValidateTemplate(tpl); err != nil {
		writeErr(w, err)
		return
	}
	row := teamhub.TemplateRow{
		ID: tpl.ID, TenantID: tpl.TenantID, Name: tpl.Name, Description: tpl.Description,
		Agents: tpl.Agents, Env: tpl.Env, Tags: tpl.Tags, CreatedAt: tpl.CreatedAt,
	}
	if err := store.SaveTemplate(row); err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, templateToResponse(row))
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	store := s.templateStore()
	if store == nil {
		writeJSON(w, http.StatusOK, []templateResponse{})
		return
	}
	rows, err := store.ListTemplates(principalFrom(r).TenantID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	resp := make([]templateResponse, 0, len(rows))
	for _, row := range rows {
		resp = append(resp, templateToResponse(row))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	store := s.templateStore()
	if store == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "template not found"})
		return
	}
	row, ok, err := store.GetTemplate(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if !ok || (!row.Builtin && row.TenantID != principalFrom(r).TenantID) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "template not found"})
		return
	}
	writeJSON(w, http.StatusOK, templateToResponse(row))
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	store := s.templateStore()
	if store == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "template not found"})
		return
	}
	existing, ok, err := store.GetTemplate(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if !ok || existing.Builtin || existing.TenantID != principalFrom(r).TenantID {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "template not found"})
		return
	}
	var req templateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}
	updated := teamhub.Template{
		ID: existing.ID, TenantID: existing.TenantID, Name: req.Name,
		Description: req.Description, Agents: req.Agents, Env: req.Env, Tags: req.Tags,
		CreatedAt: existing.CreatedAt,
	}
	if err := teamhub.ValidateTemplate(updated); err != nil {
		writeErr(w, err)
		return
	}
	row := teamhub.TemplateRow{
		ID: updated.ID, TenantID: updated.TenantID, Name: updated.Name, Description: updated.Description,
		Agents: updated.Agents, Env: updated.Env, Tags: updated.Tags, CreatedAt: updated.CreatedAt,
	}
	if err := store.SaveTemplate(row); err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, templateToResponse(row))
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	store := s.templateStore()
	if store == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	existing, ok, err := store.GetTemplate(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if !ok || existing.Builtin || existing.TenantID != principalFrom(r).TenantID {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "template not found"})
		return
	}
	if err := store.DeleteTemplate(r.PathValue("id")); err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

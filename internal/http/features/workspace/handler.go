package workspace

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/tendant/teamspace/internal/events"
	"github.com/tendant/teamspace/internal/http/features/common"
	"github.com/tendant/teamspace/internal/httputil"
	"github.com/tendant/teamspace/internal/metrics"
	"github.com/tendant/teamspace/pkg/cache"
	"github.com/tendant/teamspace/pkg/domain"
	"github.com/tendant/teamspace/pkg/workspace"
	"go.uber.org/zap"
)

// HintHeader carries the workspace id the client has cached. It is
// validated like a locally cached handle.
const HintHeader = "X-Workspace-Hint"

// Config holds the collaborators of the workspace handler.
type Config struct {
	Identities       *common.Identities
	Workspaces       workspace.WorkspaceStore
	Memberships      workspace.MembershipStore
	Profiles         workspace.ProfileStore
	Publisher        events.Publisher
	Metrics          *metrics.Metrics
	Timeout          time.Duration
	JoinCodeAttempts int
}

// Handler exposes workspace resolution over HTTP.
type Handler struct {
	cfg    Config
	logger *zap.Logger
}

// NewHandler creates a new workspace handler.
func NewHandler(logger *zap.Logger, cfg Config) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{cfg: cfg, logger: logger.Named("workspace")}
}

// JoinRequest represents a join-by-code request.
type JoinRequest struct {
	Code string `json:"code"`
}

// CreateRequest represents a create-workspace request.
type CreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// WorkspaceResponse is the resolved workspace of the caller.
type WorkspaceResponse struct {
	State     workspace.State   `json:"state"`
	Workspace *domain.Workspace `json:"workspace"`
	Members   []*domain.Member  `json:"members,omitempty"`
}

// resolver builds a request-scoped resolver for the caller. It reports
// false after writing the error response.
func (h *Handler) resolver(w http.ResponseWriter, r *http.Request) (*workspace.Resolver, bool) {
	identity, ok := h.cfg.Identities.FromRequest(w, r)
	if !ok {
		return nil, false
	}

	c := cache.NewMemory()
	if hint := strings.TrimSpace(r.Header.Get(HintHeader)); hint != "" {
		if id, err := uuid.Parse(hint); err == nil {
			if ws, err := h.cfg.Workspaces.GetByID(r.Context(), id); err == nil {
				_ = cache.SaveWorkspace(c, ws)
			}
		}
	}

	res := workspace.NewResolver(h.cfg.Workspaces, h.cfg.Memberships, h.cfg.Profiles, workspace.Options{
		Timeout:          h.cfg.Timeout,
		JoinCodeAttempts: h.cfg.JoinCodeAttempts,
		Cache:            c,
		Publisher:        h.cfg.Publisher,
		Metrics:          h.cfg.Metrics,
		Logger:           h.logger,
	})
	if err := res.SetIdentity(r.Context(), true, identity); err != nil {
		res.Close()
		h.fail(w, "resolve workspace", err)
		return nil, false
	}
	return res, true
}

func (h *Handler) respond(w http.ResponseWriter, status int, res *workspace.Resolver) {
	snap := res.Snapshot()
	httputil.JSON(w, status, WorkspaceResponse{
		State:     snap.State,
		Workspace: snap.Workspace,
		Members:   snap.Members,
	})
}

// Current returns the caller's workspace and members.
// GET /v1/workspace
func (h *Handler) Current(w http.ResponseWriter, r *http.Request) {
	res, ok := h.resolver(w, r)
	if !ok {
		return
	}
	defer res.Close()
	h.respond(w, http.StatusOK, res)
}

// Join adds the caller to the workspace with the given join code.
// POST /v1/workspace/join
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	var req JoinRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		httputil.Error(w, http.StatusBadRequest, "code is required")
		return
	}

	res, ok := h.resolver(w, r)
	if !ok {
		return
	}
	defer res.Close()

	if _, err := res.JoinWorkspace(r.Context(), req.Code); err != nil {
		h.fail(w, "join workspace", err)
		return
	}
	h.respond(w, http.StatusOK, res)
}

// Create creates a workspace owned by the caller.
// POST /v1/workspace
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	res, ok := h.resolver(w, r)
	if !ok {
		return
	}
	defer res.Close()

	if _, err := res.CreateWorkspace(r.Context(), req.Name, req.Description); err != nil {
		h.fail(w, "create workspace", err)
		return
	}
	h.respond(w, http.StatusCreated, res)
}

// Leave removes the caller from their workspace.
// DELETE /v1/workspace/membership
func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	res, ok := h.resolver(w, r)
	if !ok {
		return
	}
	defer res.Close()

	if err := res.LeaveWorkspace(r.Context()); err != nil {
		h.fail(w, "leave workspace", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Members lists the members of the caller's workspace.
// GET /v1/workspace/members
func (h *Handler) Members(w http.ResponseWriter, r *http.Request) {
	res, ok := h.resolver(w, r)
	if !ok {
		return
	}
	defer res.Close()

	members := res.Members()
	if members == nil {
		members = []*domain.Member{}
	}
	httputil.JSON(w, http.StatusOK, members)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	var invalid validator.ValidationErrors
	switch {
	case errors.As(err, &invalid):
		httputil.Error(w, http.StatusBadRequest, "name is required and must be at most 100 characters")
	case errors.Is(err, workspace.ErrNoWorkspace):
		httputil.Error(w, http.StatusNotFound, "no current workspace")
	default:
		if domain.KindOf(err) == domain.KindStoreUnavailable {
			h.logger.Error(msg, zap.Error(err))
		}
		httputil.DomainError(w, err)
	}
}

package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/opinioncore/internal/ledger"
)

// AdminService defines the methods the admin handler requires from the
// service layer. Capability enforcement happens inside the engine; the
// handler only routes.
type AdminService interface {
	Pause(ctx context.Context, actor common.Address) error
	Unpause(ctx context.Context, actor common.Address) error
	SetOpinionActive(ctx context.Context, actor common.Address, opinionID uint64, active bool) error
	SetParams(ctx context.Context, actor common.Address, p ledger.Params) error
	Params(ctx context.Context) ledger.Params
	Paused(ctx context.Context) bool
}

// AdminHandler serves privileged ledger administration endpoints. The routes
// sit behind the API-key auth middleware in addition to the engine's
// capability gate.
type AdminHandler struct {
	admin  AdminService
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler with the given service.
func NewAdminHandler(admin AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		admin:  admin,
		logger: logger,
	}
}

// Pause halts trading and pool operations.
// POST /api/admin/pause
func (h *AdminHandler) Pause(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	actor, err := parseAddress(req.Actor)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.admin.Pause(r.Context(), actor); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"paused": true})
}

// Unpause resumes trading.
// POST /api/admin/unpause
func (h *AdminHandler) Unpause(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	actor, err := parseAddress(req.Actor)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.admin.Unpause(r.Context(), actor); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"paused": false})
}

type moderateRequest struct {
	Actor  string `json:"actor"`
	Active bool   `json:"active"`
}

// SetOpinionActive moderates an opinion in or out of circulation.
// POST /api/admin/opinions/{id}/active
func (h *AdminHandler) SetOpinionActive(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req moderateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	actor, err := parseAddress(req.Actor)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.admin.SetOpinionActive(r.Context(), actor, id, req.Active); err != nil {
		writeDomainError(w, err)
		return
	}

	h.logger.InfoContext(r.Context(), "handler: opinion moderated",
		slog.Uint64("opinion_id", id),
		slog.Bool("active", req.Active),
	)
	writeJSON(w, http.StatusOK, map[string]any{"opinion_id": id, "active": req.Active})
}

// GetParams returns the current ledger parameters.
// GET /api/admin/params
func (h *AdminHandler) GetParams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.admin.Params(r.Context()))
}

type setParamsRequest struct {
	Actor  string        `json:"actor"`
	Params ledger.Params `json:"params"`
}

// SetParams replaces the ledger parameters.
// PUT /api/admin/params
func (h *AdminHandler) SetParams(w http.ResponseWriter, r *http.Request) {
	var req setParamsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	actor, err := parseAddress(req.Actor)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.admin.SetParams(r.Context(), actor, req.Params); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req.Params)
}

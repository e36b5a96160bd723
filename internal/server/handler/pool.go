package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/opinioncore/internal/domain"
	"github.com/alanyoungcy/opinioncore/internal/service"
)

// PoolService defines the methods the pool handler requires from the service
// layer.
type PoolService interface {
	CreatePool(ctx context.Context, req service.CreatePoolRequest) (domain.Pool, error)
	ContributeToPool(ctx context.Context, actor common.Address, poolID uint64, amount int64) (domain.ContributionReceipt, error)
	WithdrawFromExpiredPool(ctx context.Context, actor common.Address, poolID uint64) (int64, error)
	WithdrawFromPoolEarly(ctx context.Context, actor common.Address, poolID uint64) (int64, error)
	WithdrawFromExtendedPool(ctx context.Context, actor common.Address, poolID uint64) (int64, error)
	ExtendPoolDeadline(ctx context.Context, actor common.Address, poolID uint64, newDeadline time.Time) error
	CheckPoolExpiry(ctx context.Context, poolID uint64) (bool, error)
	GetPool(ctx context.Context, poolID uint64) (domain.Pool, error)
	ListPoolsByOpinion(ctx context.Context, opinionID uint64) ([]domain.Pool, error)
	ListContributions(ctx context.Context, poolID uint64) ([]domain.Contribution, error)
}

// PoolHandler serves funding pool endpoints.
type PoolHandler struct {
	pools  PoolService
	logger *slog.Logger
}

// NewPoolHandler creates a PoolHandler with the given service.
func NewPoolHandler(pools PoolService, logger *slog.Logger) *PoolHandler {
	return &PoolHandler{
		pools:  pools,
		logger: logger,
	}
}

type createPoolRequest struct {
	Actor               string    `json:"actor"`
	OpinionID           uint64    `json:"opinion_id"`
	ProposedAnswer      string    `json:"proposed_answer"`
	Name                string    `json:"name"`
	IPFSHash            string    `json:"ipfs_hash"`
	Deadline            time.Time `json:"deadline"`
	InitialContribution int64     `json:"initial_contribution"`
}

// CreatePool opens a new funding pool.
// POST /api/pools
func (h *PoolHandler) CreatePool(w http.ResponseWriter, r *http.Request) {
	var req createPoolRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	actor, err := parseAddress(req.Actor)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pool, err := h.pools.CreatePool(r.Context(), service.CreatePoolRequest{
		Actor:               actor,
		OpinionID:           req.OpinionID,
		ProposedAnswer:      req.ProposedAnswer,
		Name:                req.Name,
		IPFSHash:            req.IPFSHash,
		Deadline:            req.Deadline,
		InitialContribution: req.InitialContribution,
	})
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: create pool rejected",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, pool)
}

// GetPool returns a single pool with its effective status.
// GET /api/pools/{id}
func (h *PoolHandler) GetPool(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pool, err := h.pools.GetPool(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pool)
}

// ListByOpinion returns every pool targeting an opinion.
// GET /api/opinions/{id}/pools
func (h *PoolHandler) ListByOpinion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pools, err := h.pools.ListPoolsByOpinion(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"pools": pools})
}

// ListContributions returns a pool's contributions in first-contribution
// order.
// GET /api/pools/{id}/contributions
func (h *PoolHandler) ListContributions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	contribs, err := h.pools.ListContributions(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"contributions": contribs})
}

type contributeRequest struct {
	Actor  string `json:"actor"`
	Amount int64  `json:"amount"`
}

// Contribute credits a contribution, executing the pool when the target is
// crossed.
// POST /api/pools/{id}/contribute
func (h *PoolHandler) Contribute(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req contributeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	actor, err := parseAddress(req.Actor)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	receipt, err := h.pools.ContributeToPool(r.Context(), actor, id, req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}

// Withdraw refunds the caller's stake from an expired or extended pool. The
// pool's effective status picks the refund path.
// POST /api/pools/{id}/withdraw
func (h *PoolHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
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

	pool, err := h.pools.GetPool(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var refund int64
	if pool.Status == domain.PoolStatusExtended {
		refund, err = h.pools.WithdrawFromExtendedPool(r.Context(), actor, id)
	} else {
		refund, err = h.pools.WithdrawFromExpiredPool(r.Context(), actor, id)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"pool_id": id, "refund": refund})
}

// WithdrawEarly exits an active pool, surrendering the penalty.
// POST /api/pools/{id}/withdraw/early
func (h *PoolHandler) WithdrawEarly(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
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

	refund, err := h.pools.WithdrawFromPoolEarly(r.Context(), actor, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"pool_id": id, "refund": refund})
}

type extendPoolRequest struct {
	Actor       string    `json:"actor"`
	NewDeadline time.Time `json:"new_deadline"`
}

// Extend grants an expired pool its one extension window.
// POST /api/pools/{id}/extend
func (h *PoolHandler) Extend(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req extendPoolRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	actor, err := parseAddress(req.Actor)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.pools.ExtendPoolDeadline(r.Context(), actor, id, req.NewDeadline); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"pool_id": id, "new_deadline": req.NewDeadline})
}

// CheckExpiry settles a pool's status if its deadline has passed.
// POST /api/pools/{id}/expire
func (h *PoolHandler) CheckExpiry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flipped, err := h.pools.CheckPoolExpiry(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"pool_id": id, "expired": flipped})
}

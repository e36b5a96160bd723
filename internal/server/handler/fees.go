package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// FundsService defines the methods the funds handler requires from the
// service layer.
type FundsService interface {
	Deposit(ctx context.Context, actor common.Address, amount int64) error
	WithdrawBalance(ctx context.Context, actor common.Address, amount int64) error
	ClaimFees(ctx context.Context, actor common.Address) (int64, error)
	Balances(ctx context.Context, owner common.Address) (fees int64, spendable int64)
}

// FundsHandler serves deposit, withdrawal, and fee-claim endpoints.
type FundsHandler struct {
	funds  FundsService
	logger *slog.Logger
}

// NewFundsHandler creates a FundsHandler with the given service.
func NewFundsHandler(funds FundsService, logger *slog.Logger) *FundsHandler {
	return &FundsHandler{
		funds:  funds,
		logger: logger,
	}
}

type fundsRequest struct {
	Actor  string `json:"actor"`
	Amount int64  `json:"amount"`
}

// Deposit credits an actor's spendable balance.
// POST /api/funds/deposit
func (h *FundsHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req fundsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	actor, err := parseAddress(req.Actor)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.funds.Deposit(r.Context(), actor, req.Amount); err != nil {
		writeDomainError(w, err)
		return
	}

	fees, spendable := h.funds.Balances(r.Context(), actor)
	writeJSON(w, http.StatusOK, map[string]any{
		"owner":     actor.Hex(),
		"fees":      fees,
		"spendable": spendable,
	})
}

// Withdraw debits an actor's spendable balance.
// POST /api/funds/withdraw
func (h *FundsHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req fundsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	actor, err := parseAddress(req.Actor)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.funds.WithdrawBalance(r.Context(), actor, req.Amount); err != nil {
		writeDomainError(w, err)
		return
	}

	fees, spendable := h.funds.Balances(r.Context(), actor)
	writeJSON(w, http.StatusOK, map[string]any{
		"owner":     actor.Hex(),
		"fees":      fees,
		"spendable": spendable,
	})
}

// ClaimFees drains the caller's fee account into their spendable balance.
// POST /api/fees/claim
func (h *FundsHandler) ClaimFees(w http.ResponseWriter, r *http.Request) {
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

	claimed, err := h.funds.ClaimFees(r.Context(), actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	h.logger.InfoContext(r.Context(), "handler: fees claimed",
		slog.String("owner", actor.Hex()),
		slog.Int64("claimed", claimed),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"owner":   actor.Hex(),
		"claimed": claimed,
	})
}

// GetBalances returns an account's fee and spendable balances.
// GET /api/accounts/{address}/balances
func (h *FundsHandler) GetBalances(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddress(r.PathValue("address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	fees, spendable := h.funds.Balances(r.Context(), owner)
	writeJSON(w, http.StatusOK, map[string]any{
		"owner":     owner.Hex(),
		"fees":      fees,
		"spendable": spendable,
	})
}

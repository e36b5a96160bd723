package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/opinioncore/internal/domain"
	"github.com/alanyoungcy/opinioncore/internal/service"
)

// OpinionService defines the methods the opinion handler requires from the
// service layer.
type OpinionService interface {
	CreateOpinion(ctx context.Context, req service.CreateOpinionRequest) (domain.Opinion, error)
	SubmitAnswer(ctx context.Context, actor common.Address, opinionID uint64, answer, description string) (domain.TradeReceipt, error)
	ListQuestion(ctx context.Context, actor common.Address, opinionID uint64, price int64) error
	CancelQuestionListing(ctx context.Context, actor common.Address, opinionID uint64) error
	BuyQuestion(ctx context.Context, actor common.Address, opinionID uint64) (domain.QuestionSaleReceipt, error)
	GetOpinion(ctx context.Context, id uint64) (domain.Opinion, error)
	ListOpinions(ctx context.Context, opts domain.ListOpts) ([]domain.Opinion, error)
	GetHistory(ctx context.Context, opinionID uint64, opts domain.ListOpts) ([]domain.AnswerHistoryEntry, error)
}

// OpinionHandler serves opinion, trading, and question-market endpoints.
type OpinionHandler struct {
	opinions OpinionService
	logger   *slog.Logger
}

// NewOpinionHandler creates an OpinionHandler with the given service.
func NewOpinionHandler(opinions OpinionService, logger *slog.Logger) *OpinionHandler {
	return &OpinionHandler{
		opinions: opinions,
		logger:   logger,
	}
}

type createOpinionRequest struct {
	Actor       string   `json:"actor"`
	Question    string   `json:"question"`
	Answer      string   `json:"answer"`
	Description string   `json:"description"`
	Categories  []string `json:"categories"`
	IPFSHash    string   `json:"ipfs_hash"`
	Link        string   `json:"link"`
}

// CreateOpinion mints a new opinion.
// POST /api/opinions
func (h *OpinionHandler) CreateOpinion(w http.ResponseWriter, r *http.Request) {
	var req createOpinionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	actor, err := parseAddress(req.Actor)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	op, err := h.opinions.CreateOpinion(r.Context(), service.CreateOpinionRequest{
		Actor:       actor,
		Question:    req.Question,
		Answer:      req.Answer,
		Description: req.Description,
		Categories:  req.Categories,
		IPFSHash:    req.IPFSHash,
		Link:        req.Link,
	})
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: create opinion rejected",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, op)
}

// listOpinionsResponse wraps the list endpoint output with paging metadata.
type listOpinionsResponse struct {
	Opinions []domain.Opinion `json:"opinions"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

// ListOpinions returns active opinions with pagination.
// GET /api/opinions?limit=50&offset=0
func (h *OpinionHandler) ListOpinions(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	ops, err := h.opinions.ListOpinions(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list opinions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list opinions")
		return
	}

	writeJSON(w, http.StatusOK, listOpinionsResponse{
		Opinions: ops,
		Limit:    opts.Limit,
		Offset:   opts.Offset,
	})
}

// GetOpinion returns a single opinion by id.
// GET /api/opinions/{id}
func (h *OpinionHandler) GetOpinion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	op, err := h.opinions.GetOpinion(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, op)
}

// GetHistory returns an opinion's answer history.
// GET /api/opinions/{id}/history
func (h *OpinionHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.opinions.GetHistory(r.Context(), id, parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

type submitAnswerRequest struct {
	Actor       string `json:"actor"`
	Answer      string `json:"answer"`
	Description string `json:"description"`
}

// SubmitAnswer purchases the right to answer an opinion.
// POST /api/opinions/{id}/answer
func (h *OpinionHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req submitAnswerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	actor, err := parseAddress(req.Actor)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	receipt, err := h.opinions.SubmitAnswer(r.Context(), actor, id, req.Answer, req.Description)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}

type listQuestionRequest struct {
	Actor string `json:"actor"`
	Price int64  `json:"price"`
}

// ListQuestion puts an opinion's question up for sale.
// POST /api/opinions/{id}/question/listing
func (h *OpinionHandler) ListQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req listQuestionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	actor, err := parseAddress(req.Actor)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.opinions.ListQuestion(r.Context(), actor, id, req.Price); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"opinion_id": id, "price": req.Price})
}

type actorRequest struct {
	Actor string `json:"actor"`
}

// CancelQuestionListing removes a question from sale.
// DELETE /api/opinions/{id}/question/listing
func (h *OpinionHandler) CancelQuestionListing(w http.ResponseWriter, r *http.Request) {
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

	if err := h.opinions.CancelQuestionListing(r.Context(), actor, id); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"opinion_id": id})
}

// BuyQuestion purchases a listed question at its asking price.
// POST /api/opinions/{id}/question/buy
func (h *OpinionHandler) BuyQuestion(w http.ResponseWriter, r *http.Request) {
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

	receipt, err := h.opinions.BuyQuestion(r.Context(), actor, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}

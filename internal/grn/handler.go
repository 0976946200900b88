package grn

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/tillpoint/backoffice/internal/platform/httpx"
	"github.com/tillpoint/backoffice/internal/shared"
)

const postRateLimit = 30

// Handler manages goods receipt endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers goods receipt routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Put("/{id}/lines", h.handleUpsertLine)
	r.Delete("/{id}/lines/{lineID}", h.handleDeleteLine)
	r.Put("/{id}/charges", h.handleSetCharges)
	r.Post("/{id}/void", h.handleVoid)
	r.Group(func(gr chi.Router) {
		gr.Use(httprate.LimitByIP(postRateLimit, time.Minute))
		gr.Post("/{id}/post", h.handlePost)
	})
}

var errorClassifiers = []httpx.Classifier{
	httpx.Is(httpx.KindInvalidState, ErrInvalidState),
	httpx.Is(httpx.KindNotFound, ErrNotFound),
	httpx.Is(httpx.KindValidation, ErrValidation),
	httpx.Is(httpx.KindReferential, ErrReferential),
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("grn request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.RespondError(w, err, errorClassifiers...)
}

type createRequest struct {
	SupplierID int64  `json:"supplier_id" validate:"required,gt=0"`
	ReceivedBy string `json:"received_by"`
	Note       string `json:"note"`
}

type headerResponse struct {
	ID         int64     `json:"id"`
	SupplierID int64     `json:"supplier_id"`
	DocumentNo string    `json:"document_no"`
	ReceivedBy string    `json:"received_by"`
	Note       string    `json:"note"`
	Status     Status    `json:"status"`
	Subtotal   string    `json:"subtotal"`
	Tax        string    `json:"tax"`
	Other      string    `json:"other"`
	Total      string    `json:"total"`
	CreatedAt  time.Time `json:"created_at"`
}

func toHeaderResponse(h Header) headerResponse {
	return headerResponse{
		ID:         h.ID,
		SupplierID: h.SupplierID,
		DocumentNo: h.DocumentNo,
		ReceivedBy: h.ReceivedBy,
		Note:       h.Note,
		Status:     h.Status,
		Subtotal:   h.Subtotal.String(),
		Tax:        h.Tax.String(),
		Other:      h.Other.String(),
		Total:      h.Total.String(),
		CreatedAt:  h.CreatedAt,
	}
}

type lineResponse struct {
	ID         int64      `json:"id"`
	ProductID  int64      `json:"product_id"`
	Qty        string     `json:"qty"`
	UnitCost   string     `json:"unit_cost"`
	MRP        *string    `json:"mrp,omitempty"`
	BatchNo    string     `json:"batch_no,omitempty"`
	ExpiryDate *time.Time `json:"expiry_date,omitempty"`
	LineTotal  string     `json:"line_total"`
}

func toLineResponse(l Line) lineResponse {
	resp := lineResponse{
		ID:         l.ID,
		ProductID:  l.ProductID,
		Qty:        l.Qty.String(),
		UnitCost:   l.UnitCost.String(),
		BatchNo:    l.BatchNo,
		ExpiryDate: l.ExpiryDate,
		LineTotal:  l.LineTotal.String(),
	}
	if l.MRP != nil {
		mrp := l.MRP.String()
		resp.MRP = &mrp
	}
	return resp
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	header, err := h.service.Create(r.Context(), CreateInput{SupplierID: req.SupplierID, ReceivedBy: req.ReceivedBy, Note: req.Note})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toHeaderResponse(header))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	paging := shared.NewPagination(page, perPage, 0)
	supplierID, _ := strconv.ParseInt(r.URL.Query().Get("supplier_id"), 10, 64)
	filters := ListFilters{
		Status:     Status(r.URL.Query().Get("status")),
		SupplierID: supplierID,
		Search:     r.URL.Query().Get("search"),
	}
	headers, total, err := h.service.List(r.Context(), paging.PerPage, paging.Offset(), filters)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	items := make([]headerResponse, 0, len(headers))
	for _, header := range headers {
		items = append(items, toHeaderResponse(header))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items": items,
		"meta":  shared.NewPagination(paging.Page, paging.PerPage, total),
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid receipt id")
		return
	}
	header, lines, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	lineItems := make([]lineResponse, 0, len(lines))
	for _, line := range lines {
		lineItems = append(lineItems, toLineResponse(line))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"header": toHeaderResponse(header), "lines": lineItems})
}

type lineRequest struct {
	ID         int64            `json:"id"`
	ProductID  int64            `json:"product_id" validate:"required,gt=0"`
	Qty        decimal.Decimal  `json:"qty"`
	UnitCost   decimal.Decimal  `json:"unit_cost"`
	MRP        *decimal.Decimal `json:"mrp"`
	BatchNo    string           `json:"batch_no"`
	ExpiryDate *time.Time       `json:"expiry_date"`
}

func (h *Handler) handleUpsertLine(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid receipt id")
		return
	}
	var req lineRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	line, err := h.service.UpsertLine(r.Context(), id, LineInput{
		ID:         req.ID,
		ProductID:  req.ProductID,
		Qty:        req.Qty,
		UnitCost:   req.UnitCost,
		MRP:        req.MRP,
		BatchNo:    req.BatchNo,
		ExpiryDate: req.ExpiryDate,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toLineResponse(line))
}

func (h *Handler) handleDeleteLine(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid receipt id")
		return
	}
	lineID, err := urlID(r, "lineID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid line id")
		return
	}
	if err := h.service.DeleteLine(r.Context(), id, lineID); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.NoContent(w)
}

type chargesRequest struct {
	Tax   decimal.Decimal `json:"tax"`
	Other decimal.Decimal `json:"other"`
}

func (h *Handler) handleSetCharges(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid receipt id")
		return
	}
	var req chargesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.service.SetCharges(r.Context(), id, req.Tax, req.Other); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.NoContent(w)
}

type postRequest struct {
	CostPolicy CostPolicy `json:"cost_policy" validate:"required,oneof=none average latest"`
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid receipt id")
		return
	}
	var req postRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	header, err := h.service.Post(r.Context(), id, req.CostPolicy)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toHeaderResponse(header))
}

type voidRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *Handler) handleVoid(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid receipt id")
		return
	}
	var req voidRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.Void(r.Context(), id, req.Reason); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.NoContent(w)
}

func urlID(r *http.Request, param string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, param), 10, 64)
}

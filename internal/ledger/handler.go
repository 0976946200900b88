package ledger

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/tillpoint/backoffice/internal/platform/httpx"
)

// Handler manages stock and movement endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stock", h.handleStockRows)
	r.Get("/stock/{productID}", h.handleStockOf)
	r.Get("/movements", h.handleListMovements)
	r.Post("/movements", h.handleRecord)
}

var errorClassifiers = []httpx.Classifier{
	httpx.Is(httpx.KindValidation, ErrInvalidQuantity, ErrInvalidType),
	httpx.Is(httpx.KindReferential, ErrUnknownProduct),
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("ledger request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.RespondError(w, err, errorClassifiers...)
}

type stockRowResponse struct {
	ProductID    int64  `json:"product_id"`
	SKU          string `json:"sku"`
	Name         string `json:"name"`
	Unit         string `json:"unit"`
	OnHand       string `json:"on_hand"`
	ReorderLevel string `json:"reorder_level"`
	LowStock     bool   `json:"low_stock"`
}

func toStockRowResponse(row StockRow) stockRowResponse {
	return stockRowResponse{
		ProductID:    row.ProductID,
		SKU:          row.SKU,
		Name:         row.Name,
		Unit:         row.Unit,
		OnHand:       row.OnHand.String(),
		ReorderLevel: row.ReorderLevel.String(),
		LowStock:     row.LowStock,
	}
}

type movementRequest struct {
	ProductID  int64           `json:"product_id" validate:"required,gt=0"`
	Qty        decimal.Decimal `json:"qty"`
	Type       MovementType    `json:"type" validate:"required,oneof=RECEIVE ADJUST WASTE"`
	Reason     string          `json:"reason" validate:"required"`
	Note       string          `json:"note"`
	ReceivedBy string          `json:"received_by"`
}

type movementResponse struct {
	ID        int64        `json:"id"`
	ProductID int64        `json:"product_id"`
	Qty       string       `json:"qty"`
	Type      MovementType `json:"type"`
	Reason    string       `json:"reason"`
	Note      string       `json:"note,omitempty"`
	Origin    string       `json:"origin,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

func toMovementResponse(m Movement) movementResponse {
	return movementResponse{
		ID:        m.ID,
		ProductID: m.ProductID,
		Qty:       m.Qty.String(),
		Type:      m.Type,
		Reason:    m.Reason,
		Note:      m.Note,
		Origin:    m.Origin,
		CreatedAt: m.CreatedAt,
	}
}

// handleRecord accepts manual adjustments and waste. RECEIVE movements only
// ever come from GRN posting, so they are rejected here.
func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if req.Type == MovementReceive {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "RECEIVE movements are created by GRN posting")
		return
	}
	movement, err := h.service.Record(r.Context(), MovementInput{
		ProductID:  req.ProductID,
		Qty:        req.Qty,
		Type:       req.Type,
		Reason:     req.Reason,
		Note:       req.Note,
		ReceivedBy: req.ReceivedBy,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toMovementResponse(movement))
}

func (h *Handler) handleStockRows(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	filter := StockFilter{
		Search:  r.URL.Query().Get("search"),
		LowOnly: r.URL.Query().Get("low") == "true",
		Limit:   limit,
	}
	rows, err := h.service.StockRows(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	items := make([]stockRowResponse, 0, len(rows))
	for _, row := range rows {
		items = append(items, toStockRowResponse(row))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) handleStockOf(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid product id")
		return
	}
	row, err := h.service.StockRow(r.Context(), productID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toStockRowResponse(row))
}

func (h *Handler) handleListMovements(w http.ResponseWriter, r *http.Request) {
	productID, _ := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	filter := MovementFilter{
		ProductID: productID,
		Type:      MovementType(r.URL.Query().Get("type")),
		Limit:     limit,
	}
	if from := r.URL.Query().Get("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			filter.From = t
		}
	}
	if to := r.URL.Query().Get("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			filter.To = t
		}
	}
	movements, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	items := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		items = append(items, toMovementResponse(m))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

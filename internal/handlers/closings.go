package handlers

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/partshub/api/internal/platform/httpx"
	"github.com/partshub/api/internal/platform/requestctx"
	"github.com/partshub/api/internal/services"
)

const maxClosingRequestBody = 32 * 1024

// ClosingHandlers exposes the daily cash reconciliation endpoints beneath /closings.
type ClosingHandlers struct {
	closings services.ClosingService
}

// NewClosingHandlers constructs the closing handler set.
func NewClosingHandlers(svc services.ClosingService) *ClosingHandlers {
	return &ClosingHandlers{closings: svc}
}

// Routes registers the closing endpoints.
func (h *ClosingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/expected", h.expected)
	r.Get("/", h.list)
	r.Post("/", h.close)
	r.Put("/{date}", h.amend)
	r.Patch("/{date}", h.amend)
	r.Delete("/{date}", h.amend)
}

type closeShiftRequest struct {
	Date          string                     `json:"date"`
	ExpectedCash  *decimal.Decimal           `json:"expectedCash,omitempty"`
	ActualCash    *decimal.Decimal           `json:"actualCash"`
	DigitalTotals map[string]decimal.Decimal `json:"digitalTotals,omitempty"`
	Notes         string                     `json:"notes,omitempty"`
	ClosedBy      string                     `json:"closedBy,omitempty"`
}

type expectedTotalsPayload struct {
	Date          string            `json:"date"`
	ExpectedCash  string            `json:"expectedCash"`
	DigitalTotals map[string]string `json:"digitalTotals"`
	EntryCount    int               `json:"entryCount"`
}

type closingPayload struct {
	ClosingID     string            `json:"closingId"`
	Date          string            `json:"date"`
	ExpectedCash  string            `json:"expectedCash"`
	ActualCash    string            `json:"actualCash"`
	DigitalTotals map[string]string `json:"digitalTotals"`
	Variance      string            `json:"variance"`
	Status        string            `json:"status"`
	Notes         string            `json:"notes,omitempty"`
	ClosedBy      string            `json:"closedBy,omitempty"`
	CreatedAt     string            `json:"createdAt"`
}

func (h *ClosingHandlers) expected(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.closings == nil {
		writeServiceUnavailable(ctx, w, "closing")
		return
	}
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		date = h.closings.Today()
	}

	totals, err := h.closings.ExpectedForDate(ctx, date)
	if err != nil {
		writeClosingError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, expectedTotalsPayload{
		Date:          totals.Date,
		ExpectedCash:  totals.ExpectedCash.String(),
		DigitalTotals: formatTotals(totals.DigitalTotals),
		EntryCount:    totals.EntryCount,
	})
}

func (h *ClosingHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.closings == nil {
		writeServiceUnavailable(ctx, w, "closing")
		return
	}
	query := r.URL.Query()
	records, err := h.closings.ListClosings(ctx, query.Get("from"), query.Get("to"))
	if err != nil {
		writeClosingError(ctx, w, err)
		return
	}
	out := make([]closingPayload, 0, len(records))
	for _, record := range records {
		out = append(out, buildClosingPayload(record))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"closings": out})
}

func (h *ClosingHandlers) close(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.closings == nil {
		writeServiceUnavailable(ctx, w, "closing")
		return
	}

	var req closeShiftRequest
	if !decodeJSONBody(w, r, maxClosingRequestBody, &req) {
		return
	}
	if req.ActualCash == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "actualCash is required", http.StatusBadRequest))
		return
	}
	closedBy := strings.TrimSpace(req.ClosedBy)
	if closedBy == "" {
		closedBy = requestctx.Operator(ctx)
	}

	var (
		record services.ClosingRecord
		err    error
	)
	if req.ExpectedCash == nil {
		record, err = h.closings.CloseShiftFromLedger(ctx, services.CloseShiftFromLedgerCommand{
			Date:       req.Date,
			ActualCash: *req.ActualCash,
			Notes:      req.Notes,
			ClosedBy:   closedBy,
		})
	} else {
		record, err = h.closings.CloseShift(ctx, services.CloseShiftCommand{
			Date:          req.Date,
			ExpectedCash:  *req.ExpectedCash,
			ActualCash:    *req.ActualCash,
			DigitalTotals: parseTotals(req.DigitalTotals),
			Notes:         req.Notes,
			ClosedBy:      closedBy,
		})
	}
	if err != nil {
		writeClosingError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildClosingPayload(record))
}

func (h *ClosingHandlers) amend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.closings == nil {
		writeServiceUnavailable(ctx, w, "closing")
		return
	}
	writeClosingError(ctx, w, h.closings.AmendClosing(ctx, chi.URLParam(r, "date")))
}

func buildClosingPayload(record services.ClosingRecord) closingPayload {
	return closingPayload{
		ClosingID:     record.ID,
		Date:          record.Date,
		ExpectedCash:  record.ExpectedCash.String(),
		ActualCash:    record.ActualCash.String(),
		DigitalTotals: formatTotals(record.DigitalTotals),
		Variance:      record.Variance.String(),
		Status:        string(record.Status),
		Notes:         record.Notes,
		ClosedBy:      record.ClosedBy,
		CreatedAt:     formatTime(record.CreatedAt),
	}
}

func formatTotals(totals map[services.PaymentMethod]decimal.Decimal) map[string]string {
	out := make(map[string]string, len(totals))
	for method, amount := range totals {
		out[string(method)] = amount.String()
	}
	return out
}

func parseTotals(raw map[string]decimal.Decimal) map[services.PaymentMethod]decimal.Decimal {
	if len(raw) == 0 {
		return nil
	}
	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make(map[services.PaymentMethod]decimal.Decimal, len(raw))
	for _, key := range keys {
		method := services.PaymentMethod(strings.ToLower(strings.TrimSpace(key)))
		if method == "" {
			continue
		}
		out[method] = out[method].Add(raw[key])
	}
	return out
}

func writeClosingError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrClosingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrClosingAlreadyExists):
		httpx.WriteError(ctx, w, httpx.NewError("closing_already_exists", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrClosingAmendmentNotAllowed):
		httpx.WriteError(ctx, w, httpx.NewError("closing_amendment_not_allowed", "recorded closings cannot be changed", http.StatusConflict))
	case errors.Is(err, services.ErrClosingUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "closing storage temporarily unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("closing_error", "failed to process closing", http.StatusInternalServerError))
	}
}

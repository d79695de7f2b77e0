package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/inventory-control/internal/core/domain"
	"github.com/rl1809/inventory-control/internal/core/service"
)

// Services groups the use cases exposed over the transports.
type Services struct {
	Initialize *service.InitializeStockService
	Deduct     *service.DeductStockService
	Restore    *service.RestoreStockService
	Set        *service.SetStockService
	Reserve    *service.ReserveStockService
	Query      *service.StockQueryService
	Sync       *service.CounterSyncService
}

type HTTPHandler struct {
	services   Services
	adminToken string
	logger     *zap.Logger
}

type InitializeStockRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type AmountRequest struct {
	Amount int `json:"amount"`
}

type ReserveHTTPRequest struct {
	RequestID string `json:"request_id"`
	StockID   int64  `json:"stock_id"`
	Amount    int    `json:"amount"`
}

type SetQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type StockResponse struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

type AvailabilityResponse struct {
	StockID   int64 `json:"stock_id"`
	Requested int64 `json:"requested"`
	Known     bool  `json:"known"`
	Cached    int64 `json:"cached"`
	Available bool  `json:"available"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHTTPHandler(services Services, adminToken string, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{services: services, adminToken: adminToken, logger: logger}
}

// Routes registers the stock API. metrics may be nil.
func (h *HTTPHandler) Routes(metrics http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.HealthCheck)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	mux.HandleFunc("POST /api/stocks", h.InitializeStock)
	mux.HandleFunc("GET /api/stocks/availability", h.Availability)
	mux.HandleFunc("GET /api/stocks/{productID}", h.GetStock)
	mux.HandleFunc("POST /api/stocks/{productID}/deduct", h.DeductStock)
	mux.HandleFunc("POST /api/stocks/{productID}/restore", h.RestoreStock)
	mux.HandleFunc("POST /api/stocks/{productID}/reserve", h.ReserveStock)

	mux.Handle("PUT /api/admin/stocks/{productID}", h.requireAdmin(http.HandlerFunc(h.SetStock)))
	mux.Handle("POST /api/admin/stocks/sync", h.requireAdmin(http.HandlerFunc(h.SyncCounters)))

	return mux
}

func (h *HTTPHandler) InitializeStock(w http.ResponseWriter, r *http.Request) {
	var req InitializeStockRequest
	if !decode(w, r, &req) {
		return
	}

	stock, err := h.services.Initialize.Initialize(r.Context(), domain.ProductID(req.ProductID), req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toStockResponse(stock))
}

func (h *HTTPHandler) GetStock(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDFrom(w, r)
	if !ok {
		return
	}

	stock, err := h.services.Query.Get(r.Context(), productID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStockResponse(stock))
}

func (h *HTTPHandler) DeductStock(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDFrom(w, r)
	if !ok {
		return
	}
	var req AmountRequest
	if !decode(w, r, &req) {
		return
	}

	stock, err := h.services.Deduct.Deduct(r.Context(), productID, req.Amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStockResponse(stock))
}

func (h *HTTPHandler) RestoreStock(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDFrom(w, r)
	if !ok {
		return
	}
	var req AmountRequest
	if !decode(w, r, &req) {
		return
	}

	stock, err := h.services.Restore.Restore(r.Context(), productID, req.Amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStockResponse(stock))
}

func (h *HTTPHandler) ReserveStock(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDFrom(w, r)
	if !ok {
		return
	}
	var req ReserveHTTPRequest
	if !decode(w, r, &req) {
		return
	}

	stock, err := h.services.Reserve.Reserve(r.Context(), service.ReservationRequest{
		RequestID: req.RequestID,
		ProductID: productID,
		StockID:   domain.ProductStockID(req.StockID),
		Amount:    req.Amount,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStockResponse(stock))
}

func (h *HTTPHandler) Availability(w http.ResponseWriter, r *http.Request) {
	stockID, err1 := strconv.ParseInt(r.URL.Query().Get("stock_id"), 10, 64)
	amount, err2 := strconv.ParseInt(r.URL.Query().Get("amount"), 10, 64)
	if err1 != nil || err2 != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Code:    CodeInvalidArgument,
			Message: "stock_id and amount must be integers",
		})
		return
	}

	result, err := h.services.Query.Availability(r.Context(), domain.ProductStockID(stockID), amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AvailabilityResponse{
		StockID:   int64(result.StockID),
		Requested: result.Requested,
		Known:     result.Known,
		Cached:    result.Cached,
		Available: result.Available,
	})
}

func (h *HTTPHandler) SetStock(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDFrom(w, r)
	if !ok {
		return
	}
	var req SetQuantityRequest
	if !decode(w, r, &req) {
		return
	}

	stock, err := h.services.Set.SetQuantity(r.Context(), productID, req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStockResponse(stock))
}

func (h *HTTPHandler) SyncCounters(w http.ResponseWriter, r *http.Request) {
	n, err := h.services.Sync.SyncAll(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"synced": n})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !adminAuthorized(r.Header.Get("Authorization"), h.adminToken) {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Code: "unauthorized", Message: "admin token required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, status := classify(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("stock request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeJSON(w, status, ErrorResponse{Code: code, Message: publicMessage(code, err)})
}

func productIDFrom(w http.ResponseWriter, r *http.Request) (domain.ProductID, bool) {
	id, err := strconv.ParseInt(r.PathValue("productID"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Code: CodeInvalidArgument, Message: "invalid product id"})
		return 0, false
	}
	return domain.ProductID(id), true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Code: CodeInvalidArgument, Message: "invalid request body"})
		return false
	}
	return true
}

func toStockResponse(s domain.ProductStock) StockResponse {
	return StockResponse{
		ID:        int64(s.ID()),
		ProductID: int64(s.ProductID()),
		Quantity:  s.Quantity(),
		Version:   s.Version(),
		UpdatedAt: s.UpdatedAt(),
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

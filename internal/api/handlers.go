package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/AssadourKH/NEWAIBOT/internal/models"
	"github.com/go-chi/chi/v5"
)

// Order listing paging.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// orderPage is the result body of GET /api/orders.
type orderPage struct {
	Orders []models.Order `json:"orders"`
	Page   int            `json:"page"`
	Limit  int            `json:"limit"`
}

type statusUpdate struct {
	Status models.OrderStatus `json:"status"`
}

func (s *Server) listOrdersHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := positiveInt(q.Get("page"), 1)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.Error("page must be a positive integer"))
		return
	}
	limit, err := positiveInt(q.Get("limit"), DefaultPageSize)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.Error("limit must be a positive integer"))
		return
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	filter := models.OrderFilter{Limit: limit, Offset: (page - 1) * limit}
	if status := strings.TrimSpace(q.Get("status")); status != "" {
		filter.Status = models.OrderStatus(status)
		if !models.IsValidOrderStatus(filter.Status) {
			writeJSON(w, http.StatusBadRequest, models.Error("unknown order status: "+status))
			return
		}
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, models.Error("since must be an RFC3339 timestamp"))
			return
		}
		filter.Since = t
	}

	orders, err := s.st.ListOrders(r.Context(), filter)
	if err != nil {
		slog.Error("Server.listOrdersHandler: store failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, models.Error("Failed to list orders"))
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	slog.Debug("Server.listOrdersHandler: listed orders", "count", len(orders), "page", page, "status", filter.Status)
	writeJSON(w, http.StatusOK, models.Success(orderPage{Orders: orders, Page: page, Limit: limit}))
}

func (s *Server) updateOrderStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, models.Error("Invalid order id"))
		return
	}
	var body statusUpdate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		slog.Warn("Server.updateOrderStatusHandler: failed to decode JSON", "error", err)
		writeJSON(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if !models.IsValidOrderStatus(body.Status) {
		writeJSON(w, http.StatusBadRequest, models.Error("unknown order status: "+string(body.Status)))
		return
	}

	err = s.st.UpdateOrderStatus(r.Context(), id, body.Status)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, models.Error("Order not found"))
		return
	case errors.Is(err, models.ErrInvalidTransition), errors.Is(err, models.ErrInvalidStatus):
		writeJSON(w, http.StatusConflict, models.Error(err.Error()))
		return
	default:
		slog.Error("Server.updateOrderStatusHandler: store failed", "error", err, "order_id", id)
		writeJSON(w, http.StatusInternalServerError, models.Error("Failed to update order"))
		return
	}
	slog.Info("Server.updateOrderStatusHandler: order status updated", "order_id", id, "status", body.Status)
	writeJSON(w, http.StatusOK, models.SuccessWithMessage("Order status updated", statusUpdate{Status: body.Status}))
}

func (s *Server) listBranchesHandler(w http.ResponseWriter, r *http.Request) {
	branches, err := s.st.ListBranches(r.Context())
	if err != nil {
		slog.Error("Server.listBranchesHandler: store failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, models.Error("Failed to list branches"))
		return
	}
	if branches == nil {
		branches = []models.Branch{}
	}
	writeJSON(w, http.StatusOK, models.Success(branches))
}

func (s *Server) addBranchHandler(w http.ResponseWriter, r *http.Request) {
	var b models.Branch
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeJSON(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	b.Name = strings.TrimSpace(b.Name)
	if b.Name == "" {
		writeJSON(w, http.StatusBadRequest, models.Error("branch name is required"))
		return
	}
	b.ID = 0
	stored, err := s.st.AddBranch(r.Context(), b)
	if err != nil {
		slog.Error("Server.addBranchHandler: store failed", "error", err, "name", b.Name)
		writeJSON(w, http.StatusInternalServerError, models.Error("Failed to add branch"))
		return
	}
	slog.Info("Server.addBranchHandler: branch added", "id", stored.ID, "name", stored.Name)
	writeJSON(w, http.StatusCreated, models.Success(stored))
}

// positiveInt parses v, returning def when v is empty.
func positiveInt(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be positive")
	}
	return n, nil
}

package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/atelier-orders/internal/domain/order"
)

type orderItemRequest struct {
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
}

type createOrderRequest struct {
	CustomerName  string             `json:"customerName"`
	CustomerPhone string             `json:"customerPhone"`
	Address       string             `json:"address"`
	Items         []orderItemRequest `json:"items"`
}

type orderItemResponse struct {
	ID          string `json:"id"`
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	VariantID   string `json:"variantId"`
	Size        string `json:"size"`
	Color       string `json:"color"`
	Quantity    int    `json:"quantity"`
	Price       string `json:"price"`
}

type orderResponse struct {
	ID            string              `json:"id"`
	Number        string              `json:"orderNumber"`
	Status        string              `json:"status"`
	Total         string              `json:"totalAmount"`
	CustomerName  string              `json:"customerName"`
	CustomerPhone string              `json:"customerPhone"`
	Address       string              `json:"address"`
	Items         []orderItemResponse `json:"items"`
	CreatedAt     time.Time           `json:"createdAt"`
	ShippedAt     *time.Time          `json:"shippedAt,omitempty"`
	DelayedAt     *time.Time          `json:"delayedAt,omitempty"`
	CompletedAt   *time.Time          `json:"completedAt,omitempty"`
}

type orderPageResponse struct {
	Total      int             `json:"total"`
	TotalPages int             `json:"totalPages"`
	Page       int             `json:"page"`
	PageSize   int             `json:"pageSize"`
	Orders     []orderResponse `json:"orders"`
}

type batchStatusRequest struct {
	IDs    []string `json:"ids"`
	Status string   `json:"status"`
}

type batchStatusResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type statsResponse struct {
	TotalOrders int            `json:"totalOrders"`
	TotalAmount string         `json:"totalAmount"`
	StatusStats map[string]int `json:"statusStats"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decode(r, &req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, err)
		return
	}

	items := make([]order.ItemRequest, len(req.Items))
	for i, item := range req.Items {
		items[i] = order.ItemRequest{VariantID: item.VariantID, Quantity: item.Quantity}
	}

	o, err := h.orders.Create(r.Context(), order.CreateRequest{
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Address:       req.Address,
		Items:         items,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.respond(w, r, http.StatusCreated, toOrderResponse(o))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	f, err := parseListFilter(r)
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, err)
		return
	}

	page, err := h.orders.List(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := orderPageResponse{
		Total:      page.Total,
		TotalPages: page.TotalPages,
		Page:       page.Page,
		PageSize:   page.PageSize,
		Orders:     make([]orderResponse, len(page.Orders)),
	}
	for i := range page.Orders {
		resp.Orders[i] = toOrderResponse(&page.Orders[i])
	}
	h.respond(w, r, http.StatusOK, resp)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decode(r, &req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, err)
		return
	}

	target, err := order.ParseStatus(req.Status)
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, err)
		return
	}

	o, err := h.orders.Transition(r.Context(), urlParam(r, "id"), target)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) batchUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req batchStatusRequest
	if err := decode(r, &req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, err)
		return
	}
	if len(req.IDs) == 0 {
		h.respondError(w, r, http.StatusBadRequest, errors.New("ids required"))
		return
	}

	target, err := order.ParseStatus(req.Status)
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, err)
		return
	}

	results := h.orders.BatchTransition(r.Context(), req.IDs, target)

	resp := make([]batchStatusResult, len(results))
	for i, res := range results {
		resp[i] = batchStatusResult{ID: res.ID, Success: res.Err == nil}
		if res.Err != nil {
			resp[i].Error = res.Err.Error()
		}
	}
	h.respond(w, r, http.StatusOK, resp)
}

func (h *Handler) orderStats(w http.ResponseWriter, r *http.Request) {
	var f order.StatsFilter

	if v := r.URL.Query().Get("startDate"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			h.respondError(w, r, http.StatusBadRequest, err)
			return
		}
		f.StartDate = &t
	}
	if v := r.URL.Query().Get("endDate"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			h.respondError(w, r, http.StatusBadRequest, err)
			return
		}
		f.EndDate = &t
	}

	stats, err := h.orders.Stats(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := statsResponse{
		TotalOrders: stats.TotalOrders,
		TotalAmount: stats.TotalAmount.StringFixed(2),
		StatusStats: make(map[string]int, len(stats.StatusStats)),
	}
	for st, n := range stats.StatusStats {
		resp.StatusStats[string(st)] = n
	}
	h.respond(w, r, http.StatusOK, resp)
}

func parseListFilter(r *http.Request) (order.ListFilter, error) {
	q := r.URL.Query()
	f := order.ListFilter{
		Search:   q.Get("search"),
		Page:     1,
		PageSize: 10,
	}

	if v := q.Get("status"); v != "" {
		st, err := order.ParseStatus(v)
		if err != nil {
			return f, err
		}
		f.Status = &st
	}
	if v := q.Get("startDate"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			return f, err
		}
		f.StartDate = &t
	}
	if v := q.Get("endDate"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			return f, err
		}
		f.EndDate = &t
	}
	if v := q.Get("minAmount"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return f, errors.Wrap(err, "minAmount")
		}
		f.MinAmount = &d
	}
	if v := q.Get("maxAmount"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return f, errors.Wrap(err, "maxAmount")
		}
		f.MaxAmount = &d
	}
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, errors.New("page must be a positive integer")
		}
		f.Page = n
	}
	if v := q.Get("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			return f, errors.New("pageSize must be between 1 and 100")
		}
		f.PageSize = n
	}

	return f, nil
}

// parseTime accepts RFC 3339 timestamps and bare dates.
func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, errors.Errorf("invalid time %q: use RFC 3339 or YYYY-MM-DD", v)
	}
	return t, nil
}

func toOrderResponse(o *order.Order) orderResponse {
	resp := orderResponse{
		ID:            o.ID,
		Number:        o.Number,
		Status:        string(o.Status),
		Total:         o.Total.StringFixed(2),
		CustomerName:  o.CustomerName,
		CustomerPhone: o.CustomerPhone,
		Address:       o.Address,
		Items:         make([]orderItemResponse, len(o.Items)),
		CreatedAt:     o.CreatedAt,
		ShippedAt:     o.ShippedAt,
		DelayedAt:     o.DelayedAt,
		CompletedAt:   o.CompletedAt,
	}
	for i, item := range o.Items {
		resp.Items[i] = orderItemResponse{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			VariantID:   item.VariantID,
			Size:        item.Size,
			Color:       item.Color,
			Quantity:    item.Quantity,
			Price:       item.Price.StringFixed(2),
		}
	}
	return resp
}

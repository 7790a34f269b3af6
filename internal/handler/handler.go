// Package handler exposes the order and catalog services over HTTP/JSON.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/atelier-orders/internal/domain/catalog"
	"github.com/xenking/atelier-orders/internal/domain/order"
)

// Handler routes HTTP requests to the domain services.
type Handler struct {
	orders  *order.Service
	catalog *catalog.Service
}

// New constructs a Handler with the required domain services.
func New(orders *order.Service, cat *catalog.Service) *Handler {
	return &Handler{
		orders:  orders,
		catalog: cat,
	}
}

// Routes returns the API router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.createOrder)
		r.Get("/", h.listOrders)
		r.Get("/stats", h.orderStats)
		r.Post("/status", h.batchUpdateStatus)
		r.Get("/{id}", h.getOrder)
		r.Post("/{id}/status", h.updateStatus)
	})

	r.Route("/products", func(r chi.Router) {
		r.Post("/", h.createProduct)
		r.Get("/", h.listProducts)
		r.Get("/{id}", h.getProduct)
		r.Put("/{id}", h.updateProduct)
		r.Delete("/{id}", h.deleteProduct)
	})

	r.Route("/variants", func(r chi.Router) {
		r.Post("/", h.createVariant)
		r.Post("/stock", h.batchSetStock)
		r.Get("/low-stock", h.lowStock)
		r.Put("/{id}", h.updateVariant)
		r.Put("/{id}/stock", h.setStock)
		r.Delete("/{id}", h.deleteVariant)
	})

	return r
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zctx.From(r.Context()).Error("encode response", zap.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, status int, err error) {
	h.respond(w, r, status, errorResponse{Code: status, Message: err.Error()})
}

// writeError maps domain errors to HTTP statuses. Every error carries its
// domain message through to the response body so operators can see which
// variant or transition failed.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		illegalErr   *order.IllegalTransitionError
		shortfallErr *order.StockShortfallError
		notFoundErr  *order.VariantNotFoundError
		inactiveErr  *order.ProductInactiveError
		stockErr     *order.InsufficientStockError
		qtyErr       *order.InvalidQuantityError
		dupErr       *catalog.DuplicateVariantError
	)

	switch {
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, catalog.ErrVariantNotFound):
		h.respondError(w, r, http.StatusNotFound, err)

	case errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrCustomerRequired),
		errors.As(err, &qtyErr):
		h.respondError(w, r, http.StatusBadRequest, err)

	case errors.As(err, &notFoundErr),
		errors.As(err, &inactiveErr),
		errors.As(err, &stockErr),
		errors.As(err, &dupErr):
		h.respondError(w, r, http.StatusUnprocessableEntity, err)

	case errors.As(err, &illegalErr),
		errors.As(err, &shortfallErr),
		errors.Is(err, catalog.ErrVariantOrdered),
		errors.Is(err, catalog.ErrLastVariant):
		h.respondError(w, r, http.StatusConflict, err)

	case errors.Is(err, order.ErrTransactionConflict):
		h.respondError(w, r, http.StatusServiceUnavailable, err)

	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		h.respondError(w, r, http.StatusInternalServerError, errors.New("internal server error"))
	}
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Wrap(err, "invalid request body")
	}
	return nil
}

func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

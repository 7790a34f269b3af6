package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/atelier-orders/internal/domain/catalog"
)

type variantInputRequest struct {
	Size  string `json:"size"`
	Color string `json:"color"`
	Stock int    `json:"stock"`
}

type createProductRequest struct {
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Price       string                `json:"price"`
	Variants    []variantInputRequest `json:"variants"`
}

type productResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       string    `json:"price"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
}

type productPageResponse struct {
	Total      int               `json:"total"`
	TotalPages int               `json:"totalPages"`
	Page       int               `json:"page"`
	Products   []productResponse `json:"products"`
}

type updateProductRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Price       *string `json:"price"`
	Active      *bool   `json:"active"`
}

type updateVariantRequest struct {
	Size  *string `json:"size"`
	Color *string `json:"color"`
	Stock *int    `json:"stock"`
}

type deleteProductResponse struct {
	Deactivated bool `json:"deactivated"`
}

type createVariantRequest struct {
	ProductID string `json:"productId"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	Stock     int    `json:"stock"`
}

type variantResponse struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	Stock     int    `json:"stock"`
}

type variantDetailResponse struct {
	variantResponse
	ProductName string `json:"productName"`
}

type setStockRequest struct {
	Stock int `json:"stock"`
}

type batchStockRequest struct {
	Updates []struct {
		VariantID string `json:"variantId"`
		Stock     int    `json:"stock"`
	} `json:"updates"`
}

type batchStockResult struct {
	VariantID string `json:"variantId"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := decode(r, &req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, err)
		return
	}
	if req.Name == "" {
		h.respondError(w, r, http.StatusBadRequest, errors.New("name required"))
		return
	}
	if len(req.Variants) == 0 {
		h.respondError(w, r, http.StatusBadRequest, errors.New("at least one variant required"))
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		h.respondError(w, r, http.StatusBadRequest, errors.New("price must be a non-negative decimal"))
		return
	}

	in := catalog.CreateProductRequest{
		Name:        req.Name,
		Description: req.Description,
		Price:       price,
		Variants:    make([]catalog.VariantInput, len(req.Variants)),
	}
	for i, v := range req.Variants {
		in.Variants[i] = catalog.VariantInput{Size: v.Size, Color: v.Color, Stock: v.Stock}
	}

	p, err := h.catalog.CreateProduct(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusCreated, toProductResponse(p))
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	page, pageSize := 1, 20
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}
	if v := r.URL.Query().Get("pageSize"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			pageSize = n
		}
	}

	res, err := h.catalog.ListProducts(r.Context(), page, pageSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := productPageResponse{
		Total:      res.Total,
		TotalPages: res.TotalPages,
		Page:       res.Page,
		Products:   make([]productResponse, len(res.Products)),
	}
	for i := range res.Products {
		resp.Products[i] = toProductResponse(&res.Products[i])
	}
	h.respond(w, r, http.StatusOK, resp)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.GetProduct(r.Context(), urlParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, toProductResponse(p))
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req updateProductRequest
	if err := decode(r, &req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, err)
		return
	}
	if req.Name == nil && req.Description == nil && req.Price == nil && req.Active == nil {
		h.respondError(w, r, http.StatusBadRequest, errors.New("no fields to update"))
		return
	}
	if req.Name != nil && *req.Name == "" {
		h.respondError(w, r, http.StatusBadRequest, errors.New("name cannot be empty"))
		return
	}

	in := catalog.UpdateProductRequest{
		Name:        req.Name,
		Description: req.Description,
		Active:      req.Active,
	}
	if req.Price != nil {
		price, err := decimal.NewFromString(*req.Price)
		if err != nil || price.IsNegative() {
			h.respondError(w, r, http.StatusBadRequest, errors.New("price must be a non-negative decimal"))
			return
		}
		in.Price = &price
	}

	p, err := h.catalog.UpdateProduct(r.Context(), urlParam(r, "id"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, toProductResponse(p))
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	deactivated, err := h.catalog.DeleteProduct(r.Context(), urlParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, deleteProductResponse{Deactivated: deactivated})
}

func (h *Handler) createVariant(w http.ResponseWriter, r *http.Request) {
	var req createVariantRequest
	if err := decode(r, &req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, err)
		return
	}
	if req.ProductID == "" || req.Size == "" || req.Color == "" {
		h.respondError(w, r, http.StatusBadRequest, errors.New("productId, size and color required"))
		return
	}

	v, err := h.catalog.CreateVariant(r.Context(), req.ProductID, req.Size, req.Color, req.Stock)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusCreated, toVariantResponse(v))
}

func (h *Handler) updateVariant(w http.ResponseWriter, r *http.Request) {
	var req updateVariantRequest
	if err := decode(r, &req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, err)
		return
	}
	if req.Size == nil && req.Color == nil && req.Stock == nil {
		h.respondError(w, r, http.StatusBadRequest, errors.New("no fields to update"))
		return
	}
	if (req.Size != nil && *req.Size == "") || (req.Color != nil && *req.Color == "") {
		h.respondError(w, r, http.StatusBadRequest, errors.New("size and color cannot be empty"))
		return
	}

	v, err := h.catalog.UpdateVariant(r.Context(), urlParam(r, "id"), catalog.UpdateVariantRequest{
		Size:  req.Size,
		Color: req.Color,
		Stock: req.Stock,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, toVariantResponse(v))
}

func (h *Handler) setStock(w http.ResponseWriter, r *http.Request) {
	var req setStockRequest
	if err := decode(r, &req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, err)
		return
	}

	id := urlParam(r, "id")
	if err := h.catalog.SetStock(r.Context(), id, req.Stock); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, map[string]string{"id": id})
}

func (h *Handler) batchSetStock(w http.ResponseWriter, r *http.Request) {
	var req batchStockRequest
	if err := decode(r, &req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, err)
		return
	}
	if len(req.Updates) == 0 {
		h.respondError(w, r, http.StatusBadRequest, errors.New("updates required"))
		return
	}

	updates := make([]catalog.StockUpdate, len(req.Updates))
	for i, u := range req.Updates {
		updates[i] = catalog.StockUpdate{VariantID: u.VariantID, Stock: u.Stock}
	}

	results := h.catalog.BatchSetStock(r.Context(), updates)

	resp := make([]batchStockResult, len(results))
	for i, res := range results {
		resp[i] = batchStockResult{VariantID: res.VariantID, Success: res.Err == nil}
		if res.Err != nil {
			resp[i].Error = res.Err.Error()
		}
	}
	h.respond(w, r, http.StatusOK, resp)
}

func (h *Handler) deleteVariant(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteVariant(r.Context(), urlParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	threshold := 10
	if v := r.URL.Query().Get("threshold"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.respondError(w, r, http.StatusBadRequest, errors.New("threshold must be a non-negative integer"))
			return
		}
		threshold = n
	}

	variants, err := h.catalog.LowStock(r.Context(), threshold)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]variantDetailResponse, len(variants))
	for i, v := range variants {
		resp[i] = variantDetailResponse{
			variantResponse: variantResponse{
				ID:        v.ID,
				ProductID: v.ProductID,
				Size:      v.Size,
				Color:     v.Color,
				Stock:     v.Stock,
			},
			ProductName: v.ProductName,
		}
	}
	h.respond(w, r, http.StatusOK, resp)
}

func toProductResponse(p *catalog.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.StringFixed(2),
		Active:      p.Active,
		CreatedAt:   p.CreatedAt,
	}
}

func toVariantResponse(v *catalog.Variant) variantResponse {
	return variantResponse{
		ID:        v.ID,
		ProductID: v.ProductID,
		Size:      v.Size,
		Color:     v.Color,
		Stock:     v.Stock,
	}
}

//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"regexp"
	"sync"
	"testing"
)

var orderNumberPattern = regexp.MustCompile(`^ORD\d{17}$`)

func TestPlaceOrder(t *testing.T) {
	p := createProduct(t, "IT Linen Overshirt", "89.00", variantInput{Size: "M", Color: "Sand", Stock: 5})
	v := addVariant(t, p.ID, "L", "Sand", 3)

	o := placeOrder(t, v.ID, 2)

	if !orderNumberPattern.MatchString(o.Number) {
		t.Errorf("order number %q does not match pattern", o.Number)
	}
	if o.Status != "INITIALIZED" {
		t.Errorf("status: got %q, want INITIALIZED", o.Status)
	}
	if o.Total != "178.00" {
		t.Errorf("total: got %q, want 178.00", o.Total)
	}
	if len(o.Items) != 1 || o.Items[0].Price != "89.00" {
		t.Errorf("items: got %+v", o.Items)
	}
}

func TestPlaceOrder_EmptyItems(t *testing.T) {
	resp := doPost(t, "/api/orders", createOrderRequest{
		CustomerName:  "Grace Hopper",
		CustomerPhone: "+1-555-0199",
		Address:       "1 Harbor Lane",
		Items:         []orderItemRequest{},
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestPlaceOrder_UnknownVariant(t *testing.T) {
	resp := doPost(t, "/api/orders", createOrderRequest{
		CustomerName:  "Grace Hopper",
		CustomerPhone: "+1-555-0199",
		Address:       "1 Harbor Lane",
		Items:         []orderItemRequest{{VariantID: "00000000-0000-0000-0000-000000000000", Quantity: 1}},
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	p := createProduct(t, "IT Scarce Tote", "38.00", variantInput{Size: "One Size", Color: "Natural", Stock: 1})
	v := variantOf(t, p.ID)

	resp := doPost(t, "/api/orders", createOrderRequest{
		CustomerName:  "Grace Hopper",
		CustomerPhone: "+1-555-0199",
		Address:       "1 Harbor Lane",
		Items:         []orderItemRequest{{VariantID: v.ID, Quantity: 2}},
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestShipOrder_DecrementsStock(t *testing.T) {
	p := createProduct(t, "IT Merino Crewneck", "120.00", variantInput{Size: "M", Color: "Charcoal", Stock: 5})
	v := variantOf(t, p.ID)

	o := placeOrder(t, v.ID, 3)

	resp, shipped := setStatus(t, o.ID, "SHIPPED")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ship: expected 200, got %d", resp.StatusCode)
	}
	if shipped.Status != "SHIPPED" {
		t.Errorf("status: got %q, want SHIPPED", shipped.Status)
	}
	if shipped.ShippedAt == nil {
		t.Error("shippedAt not set")
	}

	if got := stockOf(t, p.ID, v.ID); got != 2 {
		t.Errorf("stock after shipment: got %d, want 2", got)
	}
}

func TestShipOrder_Shortfall(t *testing.T) {
	p := createProduct(t, "IT Selvedge Denim", "145.50", variantInput{Size: "32", Color: "Indigo", Stock: 5})
	v := variantOf(t, p.ID)

	first := placeOrder(t, v.ID, 3)
	second := placeOrder(t, v.ID, 3)

	resp, _ := setStatus(t, first.ID, "SHIPPED")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first ship: expected 200, got %d", resp.StatusCode)
	}

	// Stock is down to 2; the second order needs 3.
	resp, _ = setStatus(t, second.ID, "SHIPPED")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second ship: expected 409, got %d", resp.StatusCode)
	}

	body := decodeJSON[errorResponse](t, resp)
	if body.Message == "" {
		t.Error("expected error message")
	}

	// Nothing was decremented for the failed shipment.
	if got := stockOf(t, p.ID, v.ID); got != 2 {
		t.Errorf("stock: got %d, want 2", got)
	}

	// Restock and the order ships.
	putResp := doPut(t, "/api/variants/"+v.ID+"/stock", map[string]int{"stock": 10})
	putResp.Body.Close()

	resp, _ = setStatus(t, second.ID, "SHIPPED")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ship after restock: expected 200, got %d", resp.StatusCode)
	}
}

func TestOrderLifecycle_DelayedPath(t *testing.T) {
	p := createProduct(t, "IT Canvas Tote", "38.00", variantInput{Size: "One Size", Color: "Black", Stock: 10})
	v := variantOf(t, p.ID)

	o := placeOrder(t, v.ID, 1)

	resp, delayed := setStatus(t, o.ID, "DELAYED")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || delayed.DelayedAt == nil {
		t.Fatalf("delay: status %d, delayedAt %v", resp.StatusCode, delayed.DelayedAt)
	}

	resp, shipped := setStatus(t, o.ID, "SHIPPED")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || shipped.ShippedAt == nil {
		t.Fatalf("ship: status %d, shippedAt %v", resp.StatusCode, shipped.ShippedAt)
	}

	resp, completed := setStatus(t, o.ID, "COMPLETED")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || completed.CompletedAt == nil {
		t.Fatalf("complete: status %d, completedAt %v", resp.StatusCode, completed.CompletedAt)
	}
}

func TestOrderLifecycle_IllegalTransitions(t *testing.T) {
	p := createProduct(t, "IT Wool Beanie", "24.00", variantInput{Size: "One Size", Color: "Navy", Stock: 10})
	v := variantOf(t, p.ID)

	o := placeOrder(t, v.ID, 1)

	// INITIALIZED -> COMPLETED skips shipment.
	resp, _ := setStatus(t, o.ID, "COMPLETED")
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}

	resp, _ = setStatus(t, o.ID, "SHIPPED")
	resp.Body.Close()
	resp, _ = setStatus(t, o.ID, "COMPLETED")
	resp.Body.Close()

	// COMPLETED is terminal.
	for _, target := range []string{"INITIALIZED", "SHIPPED", "DELAYED", "COMPLETED"} {
		resp, _ := setStatus(t, o.ID, target)
		resp.Body.Close()
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("COMPLETED -> %s: expected 409, got %d", target, resp.StatusCode)
		}
	}
}

func TestBatchStatus_PartialSuccess(t *testing.T) {
	p := createProduct(t, "IT Batch Shirt", "50.00", variantInput{Size: "M", Color: "White", Stock: 5})
	v := variantOf(t, p.ID)

	a := placeOrder(t, v.ID, 3)
	b := placeOrder(t, v.ID, 3)

	resp := doPost(t, "/api/orders/status", batchStatusRequest{
		IDs:    []string{a.ID, b.ID},
		Status: "SHIPPED",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	results := decodeJSON[[]batchStatusResult](t, resp)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].Success {
		t.Errorf("first order should ship: %s", results[0].Error)
	}
	if results[1].Success {
		t.Error("second order should fail on stock")
	}

	// The winning shipment stuck.
	if got := stockOf(t, p.ID, v.ID); got != 2 {
		t.Errorf("stock: got %d, want 2", got)
	}
}

func TestListOrders_StatusFilter(t *testing.T) {
	p := createProduct(t, "IT Filter Shirt", "42.00", variantInput{Size: "S", Color: "Red", Stock: 20})
	v := variantOf(t, p.ID)

	o := placeOrder(t, v.ID, 1)
	resp, _ := setStatus(t, o.ID, "DELAYED")
	resp.Body.Close()

	listResp := doGet(t, "/api/orders?status=DELAYED&search="+o.Number)
	defer listResp.Body.Close()
	if listResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", listResp.StatusCode)
	}

	page := decodeJSON[orderPageResponse](t, listResp)
	if page.Total != 1 || len(page.Orders) != 1 {
		t.Fatalf("expected exactly one match, got %d", page.Total)
	}
	if page.Orders[0].ID != o.ID {
		t.Errorf("got order %s, want %s", page.Orders[0].ID, o.ID)
	}
}

func TestOrderStats(t *testing.T) {
	p := createProduct(t, "IT Stats Shirt", "10.00", variantInput{Size: "M", Color: "Grey", Stock: 50})
	v := variantOf(t, p.ID)
	placeOrder(t, v.ID, 1)

	resp := doGet(t, "/api/orders/stats")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	stats := decodeJSON[statsResponse](t, resp)
	if stats.TotalOrders < 1 {
		t.Errorf("totalOrders: got %d, want >= 1", stats.TotalOrders)
	}
	if stats.StatusStats["INITIALIZED"] < 1 {
		t.Errorf("statusStats: got %v", stats.StatusStats)
	}
}

// variantOf returns the sole low-stock-visible variant of a product created
// with a single variant.
func variantOf(t *testing.T, productID string) variantResponse {
	t.Helper()

	resp := doGet(t, "/api/variants/low-stock?threshold=1000000")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("low-stock: expected 200, got %d", resp.StatusCode)
	}

	for _, v := range decodeJSON[[]variantResponse](t, resp) {
		if v.ProductID == productID {
			return v
		}
	}
	t.Fatalf("no variant found for product %s", productID)
	return variantResponse{}
}

func stockOf(t *testing.T, productID, variantID string) int {
	t.Helper()

	resp := doGet(t, "/api/variants/low-stock?threshold=1000000")
	defer resp.Body.Close()

	for _, v := range decodeJSON[[]variantResponse](t, resp) {
		if v.ID == variantID {
			return v.Stock
		}
	}
	t.Fatalf("variant %s not found", variantID)
	return 0
}

// Two orders compete for stock that can satisfy only one of them. Exactly one
// shipment must win regardless of interleaving.
func TestShipOrder_ConcurrentRace(t *testing.T) {
	p := createProduct(t, "IT Raw Silk Shirt", "164.00", variantInput{Size: "S", Color: "Ivory", Stock: 5})
	v := variantOf(t, p.ID)

	first := placeOrder(t, v.ID, 3)
	second := placeOrder(t, v.ID, 3)

	ship := func(orderID string) int {
		body, _ := json.Marshal(statusRequest{Status: "SHIPPED"})
		resp, err := httpClient.Post(baseURL+"/api/orders/"+orderID+"/status", "application/json", bytes.NewReader(body))
		if err != nil {
			return 0
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	codes := make(chan int, 2)
	var wg sync.WaitGroup
	for _, id := range []string{first.ID, second.ID} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			codes <- ship(id)
		}(id)
	}
	wg.Wait()
	close(codes)

	var ok, conflict int
	for code := range codes {
		switch code {
		case http.StatusOK:
			ok++
		case http.StatusConflict:
			conflict++
		default:
			t.Errorf("unexpected status %d", code)
		}
	}
	if ok != 1 || conflict != 1 {
		t.Fatalf("got %d successes and %d conflicts, want exactly one of each", ok, conflict)
	}

	if got := stockOf(t, p.ID, v.ID); got != 2 {
		t.Errorf("stock after race: got %d, want 2", got)
	}
}

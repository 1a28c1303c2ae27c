//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func lineFor(t *testing.T, o orderResponse, itemID string) lineResponse {
	t.Helper()

	for _, l := range o.Items {
		if l.ItemID == itemID {
			return l
		}
	}
	t.Fatalf("order %s has no line for %s", o.ID, itemID)
	return lineResponse{}
}

func TestItems(t *testing.T) {
	resp := doGet(t, "/api/items")
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)

	items := decodeJSON[itemsResponse](t, resp)
	if len(items.Items) != seededItems {
		t.Fatalf("expected %d items, got %d", seededItems, len(items.Items))
	}
}

func TestOrderLifecycle(t *testing.T) {
	for _, line := range []map[string]any{
		{"itemId": "plastic-bottles", "quantity": 2.0},
		{"itemId": "aluminium-cans", "quantity": 4},
	} {
		resp := do(t, &customer, http.MethodPut, "/api/cart/items", line)
		expectStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	}

	resp := do(t, &customer, http.MethodPost, "/api/orders",
		map[string]any{"addressId": "addr-1", "paymentMethod": "cash"},
		"Idempotency-Key", "lifecycle-1")
	expectStatus(t, resp, http.StatusCreated)
	created := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()

	if created.Status != "pending" {
		t.Fatalf("status: got %q, want pending", created.Status)
	}
	if created.TotalAmount != 37 {
		t.Fatalf("total: got %v, want 37", created.TotalAmount)
	}
	if got := resp.Header.Get("Location"); got != "/api/orders/"+created.ID {
		t.Errorf("Location: got %q", got)
	}

	// Same idempotency key, same order.
	resp = do(t, &customer, http.MethodPost, "/api/orders",
		map[string]any{"addressId": "addr-1", "paymentMethod": "cash"},
		"Idempotency-Key", "lifecycle-1")
	expectStatus(t, resp, http.StatusCreated)
	if again := decodeJSON[orderResponse](t, resp); again.ID != created.ID {
		t.Errorf("idempotent create returned %s, want %s", again.ID, created.ID)
	}
	resp.Body.Close()

	transitions := "/api/orders/" + created.ID + "/transitions"

	resp = do(t, &customer, http.MethodPost, transitions, map[string]any{"status": "assigntocourier", "courierId": "courier-1"})
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = do(t, &admin, http.MethodPost, transitions, map[string]any{"status": "assigntocourier", "courierId": "courier-2"})
	expectStatus(t, resp, http.StatusUnprocessableEntity)
	resp.Body.Close()

	resp = do(t, &admin, http.MethodPost, transitions, map[string]any{"status": "assigntocourier", "courierId": "courier-1"})
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	bottles := lineFor(t, created, "plastic-bottles")
	resp = do(t, &courier, http.MethodPost, transitions, map[string]any{
		"status":    "collected",
		"collected": []map[string]any{{"lineId": bottles.ID, "quantity": 1.5}},
		"notes":     "half a bag was wet",
	})
	expectStatus(t, resp, http.StatusOK)
	collected := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()
	if collected.TotalAmount != 32 {
		t.Fatalf("total after collection: got %v, want 32", collected.TotalAmount)
	}
	if q := lineFor(t, collected, "plastic-bottles").Quantity; q != 1.5 {
		t.Errorf("collected quantity: got %v, want 1.5", q)
	}

	resp = do(t, &courier, http.MethodPost, transitions, map[string]any{
		"status": "completed",
		"proof":  map[string]any{"photoUrl": "https://cdn.example.com/proof/1.jpg"},
	})
	expectStatus(t, resp, http.StatusOK)
	completed := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()
	if len(completed.StatusHistory) != 4 {
		t.Errorf("history: got %d entries, want 4", len(completed.StatusHistory))
	}

	resp = do(t, &courier, http.MethodPost, transitions, map[string]any{"status": "cancelled", "reason": "late"})
	expectStatus(t, resp, http.StatusConflict)
	errBody := decodeJSON[errorResponse](t, resp)
	resp.Body.Close()
	if errBody.Code != http.StatusConflict {
		t.Errorf("error code: got %d", errBody.Code)
	}

	resp = do(t, &customer, http.MethodGet, "/api/me/balances", nil)
	expectStatus(t, resp, http.StatusOK)
	balances := decodeJSON[balancesResponse](t, resp)
	resp.Body.Close()
	if balances.Points != 15 {
		t.Errorf("points: got %v, want 15", balances.Points)
	}

	resp = do(t, &customer, http.MethodGet, "/api/me/notifications", nil)
	expectStatus(t, resp, http.StatusOK)
	notes := decodeJSON[notificationsResponse](t, resp)
	resp.Body.Close()
	seen := map[string]bool{}
	for _, n := range notes.Notifications {
		if n.OrderID == created.ID {
			seen[n.Type] = true
		}
	}
	for _, typ := range []string{"order_collected", "order_completed"} {
		if !seen[typ] {
			t.Errorf("missing %s notification", typ)
		}
	}
}

func TestCancelPendingOrder(t *testing.T) {
	resp := do(t, &customer, http.MethodPut, "/api/cart/items", map[string]any{"itemId": "glass-jars", "quantity": 3})
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = do(t, &customer, http.MethodPost, "/api/orders", map[string]any{"addressId": "addr-1"})
	expectStatus(t, resp, http.StatusCreated)
	o := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()

	resp = do(t, &customer, http.MethodPost, "/api/orders/"+o.ID+"/transitions", map[string]any{"status": "cancelled"})
	expectStatus(t, resp, http.StatusUnprocessableEntity)
	resp.Body.Close()

	resp = do(t, &customer, http.MethodPost, "/api/orders/"+o.ID+"/transitions",
		map[string]any{"status": "cancelled", "reason": "changed my mind"})
	expectStatus(t, resp, http.StatusOK)
	cancelled := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()
	if cancelled.Status != "cancelled" {
		t.Fatalf("status: got %q, want cancelled", cancelled.Status)
	}
}

func TestOrderErrors(t *testing.T) {
	resp := do(t, nil, http.MethodPost, "/api/orders", map[string]any{"addressId": "addr-1"})
	expectStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()

	resp = do(t, &customer, http.MethodGet, "/api/orders/does-not-exist", nil)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	resp = do(t, &customer, http.MethodPost, "/api/orders", map[string]any{"addressId": "addr-2"})
	expectStatus(t, resp, http.StatusUnprocessableEntity)
	resp.Body.Close()
}

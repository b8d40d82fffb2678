package procurement

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/projectledger/internal/inventory"
	"github.com/odyssey-erp/projectledger/internal/platform/httpx/httpxtest"
)

func newTestAPI(repo *memoryProcRepo) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), newService(repo), 3)
	return httpxtest.Router(func(r chi.Router) { h.MountRoutes(r) })
}

func TestHandlerCreateValidateReceive(t *testing.T) {
	repo := newMemoryProcRepo()
	productID := repo.stock.AddProduct(inventory.Product{Code: "PROD-2024-0001", Name: "Ciment CPJ 45", Active: true})
	api := newTestAPI(repo)

	rr := httpxtest.Do(t, api, httpxtest.Request{
		Method: http.MethodPost,
		Path:   "/purchase-orders",
		Actor:  7,
		Body: map[string]any{
			"project_id":  1,
			"supplier_id": 3,
			"order_date":  "2024-02-10",
			"lines": []map[string]any{
				{"product_id": productID, "quantity": "10", "unit_price": "80000"},
			},
		},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created orderView
	httpxtest.Decode(t, rr, &created)
	require.Equal(t, "ACH-2024-0001", created.Code)
	require.Equal(t, StatusDraft, created.Status)
	require.EqualValues(t, 7, created.CreatedBy)
	require.True(t, d("800000").Equal(created.Total), created.Total.String())
	require.Len(t, created.Lines, 1)
	require.True(t, d("800000").Equal(created.Lines[0].Amount))

	rr = httpxtest.Do(t, api, httpxtest.Request{Method: http.MethodPost, Path: fmt.Sprintf("/purchase-orders/%d/receive", created.ID), Actor: 8})
	require.Equal(t, http.StatusConflict, rr.Code, "a draft order cannot be received")

	rr = httpxtest.Do(t, api, httpxtest.Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/purchase-orders/%d/transition", created.ID),
		Actor:  8,
		Body:   map[string]string{"status": "VALIDATED"},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Len(t, repo.book.BySource(Module, created.ID), 1)

	rr = httpxtest.Do(t, api, httpxtest.Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/purchase-orders/%d/receive", created.ID),
		Actor:  8,
		Body:   map[string]string{"received_date": "2024-02-15"},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var received PurchaseOrder
	httpxtest.Decode(t, rr, &received)
	require.Equal(t, StatusReceived, received.Status)
	require.NotNil(t, received.ReceivedDate)
	require.Equal(t, "2024-02-15", received.ReceivedDate.Format("2006-01-02"))

	stock, ok := repo.stock.Stock(1, productID)
	require.True(t, ok)
	require.True(t, d("10").Equal(stock.Quantity))
	require.True(t, d("80000").Equal(repo.stock.Products[productID].AverageCost))
	require.Len(t, repo.book.Entries, 1)

	rr = httpxtest.Do(t, api, httpxtest.Request{Method: http.MethodGet, Path: fmt.Sprintf("/purchase-orders/%d", created.ID), Actor: 8})
	require.Equal(t, http.StatusOK, rr.Code)
	var fetched orderView
	httpxtest.Decode(t, rr, &fetched)
	require.Equal(t, StatusReceived, fetched.Status)
	require.Len(t, fetched.Lines, 1)
}

func TestHandlerRejectsBadOrders(t *testing.T) {
	repo := newMemoryProcRepo()
	productID := repo.stock.AddProduct(inventory.Product{Code: "PROD-2024-0001", Name: "Sable", Active: true})
	api := newTestAPI(repo)

	line := func(qty, price string) []map[string]any {
		return []map[string]any{{"product_id": productID, "quantity": qty, "unit_price": price}}
	}
	cases := []struct {
		name string
		body map[string]any
		code int
	}{
		{"received is not a creation status", map[string]any{"project_id": 1, "supplier_id": 3, "status": "RECEIVED"}, http.StatusBadRequest},
		{"missing supplier", map[string]any{"project_id": 1}, http.StatusBadRequest},
		{"line without product", map[string]any{"project_id": 1, "supplier_id": 3, "lines": []map[string]any{{"quantity": "1", "unit_price": "1"}}}, http.StatusBadRequest},
		{"malformed price", map[string]any{"project_id": 1, "supplier_id": 3, "lines": line("1", "1 000")}, http.StatusBadRequest},
		{"negative quantity", map[string]any{"project_id": 1, "supplier_id": 3, "lines": line("-2", "100")}, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httpxtest.Do(t, api, httpxtest.Request{Method: http.MethodPost, Path: "/purchase-orders", Actor: 7, Body: tc.body})
			require.Equal(t, tc.code, rr.Code, rr.Body.String())
		})
	}
	require.Empty(t, repo.orders)
}

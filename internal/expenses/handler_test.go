package expenses

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/projectledger/internal/ledger"
	"github.com/odyssey-erp/projectledger/internal/platform/httpx/httpxtest"
)

func newTestAPI() (http.Handler, *memoryRepo) {
	repo := newMemoryRepo()
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), NewService(repo))
	return httpxtest.Router(func(r chi.Router) { h.MountRoutes(r) }), repo
}

func TestHandlerCreateAndValidate(t *testing.T) {
	api, repo := newTestAPI()

	rr := httpxtest.Do(t, api, httpxtest.Request{
		Method: http.MethodPost,
		Path:   "/expenses",
		Actor:  5,
		Body: map[string]any{
			"project_id":     1,
			"category":       "Carburant",
			"amount":         "75000.50",
			"date":           "2024-04-02",
			"payment_method": "CASH",
		},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created Expense
	httpxtest.Decode(t, rr, &created)
	require.Equal(t, StatusPending, created.Status)
	require.Equal(t, "75000.5", created.Amount.String())
	require.EqualValues(t, 5, created.CreatedBy)
	require.Equal(t, "2024-04-02", created.Date.Format("2006-01-02"))
	require.Empty(t, repo.book.Entries)

	rr = httpxtest.Do(t, api, httpxtest.Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/expenses/%d/transition", created.ID),
		Actor:  9,
		Body:   map[string]string{"status": "VALIDATED"},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var validated Expense
	httpxtest.Decode(t, rr, &validated)
	require.Equal(t, StatusValidated, validated.Status)
	require.NotNil(t, validated.ApprovedBy)
	require.EqualValues(t, 9, *validated.ApprovedBy)

	entries := repo.book.BySource(Module, created.ID)
	require.Len(t, entries, 1)
	require.Equal(t, ledger.KindExpense, entries[0].Kind)
	require.EqualValues(t, 9, entries[0].CreatedBy)

	rr = httpxtest.Do(t, api, httpxtest.Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/expenses/%d/transition", created.ID),
		Actor:  9,
		Body:   map[string]string{"status": "VALIDATED"},
	})
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Len(t, repo.book.Entries, 1)

	rr = httpxtest.Do(t, api, httpxtest.Request{
		Method: http.MethodPut,
		Path:   fmt.Sprintf("/expenses/%d", created.ID),
		Actor:  5,
		Body:   map[string]any{"project_id": 1, "category": "Carburant", "amount": "1"},
	})
	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandlerRejectsBadInput(t *testing.T) {
	api, repo := newTestAPI()

	cases := []struct {
		name string
		req  httpxtest.Request
		code int
	}{
		{
			name: "missing actor",
			req:  httpxtest.Request{Method: http.MethodPost, Path: "/expenses", Body: map[string]any{"project_id": 1, "category": "X", "amount": "10"}},
			code: http.StatusUnauthorized,
		},
		{
			name: "unknown status",
			req:  httpxtest.Request{Method: http.MethodPost, Path: "/expenses", Actor: 5, Body: map[string]any{"project_id": 1, "category": "X", "amount": "10", "status": "APPROVED"}},
			code: http.StatusBadRequest,
		},
		{
			name: "malformed amount",
			req:  httpxtest.Request{Method: http.MethodPost, Path: "/expenses", Actor: 5, Body: map[string]any{"project_id": 1, "category": "X", "amount": "12,5"}},
			code: http.StatusBadRequest,
		},
		{
			name: "zero amount",
			req:  httpxtest.Request{Method: http.MethodPost, Path: "/expenses", Actor: 5, Body: map[string]any{"project_id": 1, "category": "X", "amount": "0"}},
			code: http.StatusUnprocessableEntity,
		},
		{
			name: "unknown field",
			req:  httpxtest.Request{Method: http.MethodPost, Path: "/expenses", Actor: 5, Body: `{"project_id":1,"category":"X","amount":"10","approved":true}`},
			code: http.StatusBadRequest,
		},
		{
			name: "missing expense",
			req:  httpxtest.Request{Method: http.MethodGet, Path: "/expenses/42", Actor: 5},
			code: http.StatusNotFound,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httpxtest.Do(t, api, tc.req)
			require.Equal(t, tc.code, rr.Code, rr.Body.String())
		})
	}
	require.Empty(t, repo.expenses)
	require.Empty(t, repo.book.Entries)
}

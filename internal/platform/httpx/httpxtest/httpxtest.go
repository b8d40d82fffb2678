// Package httpxtest drives API handlers in package tests.
package httpxtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/projectledger/internal/platform/httpx"
)

// Router mounts handler routes behind httpx.RequireActor, as the API router does.
func Router(mount func(chi.Router)) http.Handler {
	r := chi.NewRouter()
	r.Use(httpx.RequireActor)
	mount(r)
	return r
}

// Request is one API call. A string Body is sent verbatim, anything else as JSON.
// Actor 0 sends no actor header.
type Request struct {
	Method         string
	Path           string
	Actor          int64
	Body           any
	IdempotencyKey string
}

// Do serves req through h.
func Do(t testing.TB, h http.Handler, req Request) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	switch b := req.Body.(type) {
	case nil:
	case string:
		body = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	r := httptest.NewRequest(req.Method, req.Path, body)
	r.Header.Set("Content-Type", "application/json")
	if req.Actor != 0 {
		r.Header.Set(httpx.ActorHeader, strconv.FormatInt(req.Actor, 10))
	}
	if req.IdempotencyKey != "" {
		r.Header.Set(httpx.IdempotencyHeader, req.IdempotencyKey)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, r)
	return rr
}

// Decode unmarshals the response body into target.
func Decode(t testing.TB, rr *httptest.ResponseRecorder, target any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), target), rr.Body.String())
}

// KeyTable is an in-memory idempotency_keys table for shared.IdempotencyStore.
type KeyTable struct {
	mu   sync.Mutex
	keys map[string]bool
}

// NewKeyTable returns an empty table.
func NewKeyTable() *KeyTable {
	return &KeyTable{keys: make(map[string]bool)}
}

// Exec answers the store's INSERT and DELETE statements, failing a repeated
// insert with a unique violation.
func (k *KeyTable) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(args) < 2 {
		return pgconn.CommandTag{}, nil
	}
	id := fmt.Sprint(args[0], "/", args[1])
	switch {
	case strings.HasPrefix(sql, "INSERT"):
		if k.keys[id] {
			return pgconn.CommandTag{}, &pgconn.PgError{Code: "23505", ConstraintName: "idempotency_keys_pkey"}
		}
		k.keys[id] = true
	case strings.HasPrefix(sql, "DELETE"):
		delete(k.keys, id)
	}
	return pgconn.CommandTag{}, nil
}

// Len reports how many keys are held.
func (k *KeyTable) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.keys)
}

package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/projectledger/internal/shared"
)

// ActorHeader carries the authenticated user id set by the upstream gateway.
const ActorHeader = "X-Actor-ID"

// IdempotencyHeader carries the client supplied request key.
const IdempotencyHeader = "Idempotency-Key"

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// IDParam parses the named chi URL parameter as a positive id.
func IDParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("httpx: %s %q: %w", name, chi.URLParam(r, name), ErrBadRequest)
	}
	return id, nil
}

// QueryID parses an optional id query parameter. Missing means zero.
func QueryID(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("httpx: %s %q: %w", name, raw, ErrBadRequest)
	}
	return id, nil
}

// Decode reads the JSON body into target and runs struct validation. An empty
// body leaves target zeroed.
func Decode(r *http.Request, v *validator.Validate, target any) error {
	if err := DecodeJSON(r, target); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("httpx: decode body: %v: %w", err, ErrBadRequest)
	}
	if v == nil {
		return nil
	}
	return v.Struct(target)
}

// ParseDecimal parses a decimal amount. Empty means zero.
func ParseDecimal(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("httpx: amount %q: %w", raw, shared.ErrValidation)
	}
	return d, nil
}

// ParseDate parses a YYYY-MM-DD date. Empty means the zero time.
func ParseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("httpx: date %q: %w", raw, shared.ErrValidation)
	}
	return t, nil
}

// ParseOptionalDate parses raw into a pointer. Empty means nil.
func ParseOptionalDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// RequireActor rejects requests without a numeric actor header and stores the actor in context.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.Header.Get(ActorHeader), 10, 64)
		if err != nil || id <= 0 {
			RespondError(w, fmt.Errorf("httpx: missing %s: %w", ActorHeader, ErrUnauthorized))
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), id)))
	})
}

// RetryDuplicate runs fn until it stops failing with ErrDuplicateCode or ErrConflict, at
// most attempts times. Both errors leave the transaction rolled back, so fn is replayed whole.
func RetryDuplicate[T any](ctx context.Context, attempts int, fn func(context.Context) (T, error)) (T, error) {
	if attempts < 1 {
		attempts = 1
	}
	var (
		out T
		err error
	)
	for i := 0; i < attempts; i++ {
		out, err = fn(ctx)
		if !errors.Is(err, shared.ErrDuplicateCode) && !errors.Is(err, shared.ErrConflict) {
			return out, err
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
	}
	return out, err
}

// Idempotent claims the request's Idempotency-Key for module before running next.
// Requests without a key pass through. A failed request releases its key.
func Idempotent(store *shared.IdempotencyStore, module string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyHeader)
			if key == "" || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			if err := store.CheckAndInsert(r.Context(), key, module); err != nil {
				RespondError(w, err)
				return
			}
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			if rec.status >= http.StatusBadRequest {
				_ = store.Delete(context.WithoutCancel(r.Context()), key, module)
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// TransitionForm is the body of workflow transition endpoints.
type TransitionForm struct {
	Status string `json:"status" validate:"required,uppercase"`
	Note   string `json:"note" validate:"max=500"`
}

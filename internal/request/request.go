package request

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// HeaderRequestID carries a caller-supplied correlation id
const HeaderRequestID = "X-Request-ID"

const maxRequestIDLength = 64

// ID returns the request's correlation id: a sane X-Request-ID header, or a new uuid
func ID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(HeaderRequestID)); id != "" && len(id) <= maxRequestIDLength && printable(id) {
		return id
	}
	return uuid.NewString()
}

// WithID returns a context carrying the correlation id
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// IDFromContext returns the correlation id, or "" if none is set
func IDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func printable(s string) bool {
	for _, r := range s {
		if r < 0x21 || r > 0x7e {
			return false
		}
	}
	return true
}

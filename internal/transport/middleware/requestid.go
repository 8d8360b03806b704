package middleware

import (
	"net/http"

	"github.com/frahmantamala/orgtree/pkg/logger"
	"github.com/google/uuid"
)

const HeaderTraceID = "X-Trace-ID"

// RequestID reuses an incoming trace id or mints one, echoes it on the
// response and attaches it to the request logger.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(HeaderTraceID)
		if traceID == "" {
			traceID = uuid.NewString()
		}

		ctx := logger.With(r.Context(), "traceID", traceID)
		w.Header().Set(HeaderTraceID, traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/frahmantamala/orgtree/internal"
	"github.com/frahmantamala/orgtree/pkg/logger"
)

const (
	HeaderAuthorization = "authorization"
	HeaderRefreshToken  = "refresh_token"
)

// Envelope is the body shape of every API response.
type Envelope struct {
	StatusCode int         `json:"statusCode"`
	Success    bool        `json:"success"`
	Result     interface{} `json:"result"`
}

// BaseHandler provides common functionality for HTTP handlers
type BaseHandler struct {
	Logger *slog.Logger
}

// NewBaseHandler creates a base handler with logger
func NewBaseHandler(lg *slog.Logger) *BaseHandler {
	if lg == nil {
		lg = logger.LoggerWrapper()
	}
	return &BaseHandler{Logger: lg}
}

// WriteJSON wraps data in the response envelope.
func (h *BaseHandler) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	env := Envelope{StatusCode: status, Success: status < http.StatusBadRequest, Result: data}
	if err := json.NewEncoder(w).Encode(env); err != nil {
		h.Logger.Error("failed to encode JSON response", "error", err)
	}
}

// WriteSuccess writes {"success": true} as the result.
func (h *BaseHandler) WriteSuccess(w http.ResponseWriter) {
	h.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// WriteError maps err onto the error taxonomy. Anything that is not an
// AppError is logged and reported as a generic internal error.
func (h *BaseHandler) WriteError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := internal.IsAppError(err)
	if !ok {
		appErr = internal.NewInternalError("Internal server error", err)
	}

	lg := h.Logger
	if r != nil {
		lg = logger.From(r.Context())
	}
	if appErr.StatusCode >= http.StatusInternalServerError {
		lg.Error("request failed", "error", err)
	} else {
		lg.Warn("request rejected", "status", appErr.StatusCode, "code", appErr.Code, "message", appErr.GetDetailedMessage())
	}

	h.WriteJSON(w, appErr.StatusCode, appErr)
}

// DecodeJSON reads the request body into dst.
func (h *BaseHandler) DecodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return internal.ErrInvalidBody.WithCause(err)
	}
	return nil
}

// ExtractTokenFromHeader extracts Bearer token from Authorization header
func (h *BaseHandler) ExtractTokenFromHeader(r *http.Request) string {
	authHeader := strings.TrimSpace(r.Header.Get(HeaderAuthorization))
	if len(authHeader) < 7 || !strings.EqualFold(authHeader[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(authHeader[7:])
}

// ExtractRefreshToken reads the refresh_token header.
func (h *BaseHandler) ExtractRefreshToken(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(HeaderRefreshToken))
}

// SetTokenHeaders exposes issued tokens to the client. Empty values are skipped.
func (h *BaseHandler) SetTokenHeaders(w http.ResponseWriter, accessToken, refreshToken string) {
	if accessToken != "" {
		w.Header().Set(HeaderAuthorization, "Bearer "+accessToken)
	}
	if refreshToken != "" {
		w.Header().Set(HeaderRefreshToken, refreshToken)
	}
}

package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/orgtree/internal"
	"github.com/frahmantamala/orgtree/internal/transport"
	"github.com/frahmantamala/orgtree/pkg/logger"
)

type ServiceAPI interface {
	AdminLogin(ctx context.Context, dto AdminLoginDTO) (string, error)
	UserLogin(ctx context.Context, dto UserLoginDTO) (*Session, error)
	Refresh(ctx context.Context, accessToken, refreshToken string) (string, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(svc ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
	}
}

func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var dto AdminLoginDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteError(w, r, err)
		return
	}

	accessToken, err := h.Service.AdminLogin(r.Context(), dto)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}

	h.SetTokenHeaders(w, accessToken, "")
	h.WriteSuccess(w)
}

func (h *Handler) AdminLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Logout(r.Context(), h.ExtractTokenFromHeader(r), ""); err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.WriteSuccess(w)
}

func (h *Handler) UserLogin(w http.ResponseWriter, r *http.Request) {
	var dto UserLoginDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteError(w, r, err)
		return
	}

	session, err := h.Service.UserLogin(r.Context(), dto)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}

	h.SetTokenHeaders(w, session.AccessToken, session.RefreshToken)
	h.WriteJSON(w, http.StatusOK, session.Profile)
}

// Refresh rotates the access token. It is mounted outside the
// authentication middleware because the old access token may have expired.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	accessToken := h.ExtractTokenFromHeader(r)
	refreshToken := h.ExtractRefreshToken(r)

	newAccess, err := h.Service.Refresh(r.Context(), accessToken, refreshToken)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}

	h.SetTokenHeaders(w, newAccess, "")
	h.WriteSuccess(w)
}

func (h *Handler) UserLogout(w http.ResponseWriter, r *http.Request) {
	refreshToken := h.ExtractRefreshToken(r)
	if refreshToken == "" {
		h.WriteError(w, r, internal.ErrMissingToken.WithDetails(map[string]string{"header": transport.HeaderRefreshToken}))
		return
	}

	if err := h.Service.Logout(r.Context(), h.ExtractTokenFromHeader(r), refreshToken); err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.WriteSuccess(w)
}

package user

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/frahmantamala/orgtree/internal"
	"github.com/frahmantamala/orgtree/internal/node"
	"github.com/frahmantamala/orgtree/internal/transport"
	"github.com/frahmantamala/orgtree/pkg/logger"
	"github.com/go-chi/chi"
)

type ServiceAPI interface {
	Create(ctx context.Context, actor internal.Actor, dto CreateUserDTO) (*User, error)
	List(ctx context.Context, actor internal.Actor, q ListQuery) (*internal.ListResult[*Profile], error)
	GetByID(ctx context.Context, actor internal.Actor, id string) (*User, error)
	Profile(ctx context.Context, actor internal.Actor) (*User, error)
	Update(ctx context.Context, actor internal.Actor, id string, dto UpdateUserDTO) (*User, error)
	ChangePassword(ctx context.Context, actor internal.Actor, dto ChangePasswordDTO) error
	Archive(ctx context.Context, actor internal.Actor, id string) (*User, error)
	Restore(ctx context.Context, actor internal.Actor, id string) (*User, error)
}

// SessionRevoker ends the caller's session after a password change.
type SessionRevoker interface {
	Logout(ctx context.Context, accessToken, refreshToken string) error
}

type Handler struct {
	*transport.BaseHandler
	Service  ServiceAPI
	Sessions SessionRevoker
}

func NewHandler(svc ServiceAPI, sessions SessionRevoker) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
		Sessions:    sessions,
	}
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := internal.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, r, internal.ErrMissingToken)
		return
	}

	var dto CreateUserDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteError(w, r, err)
		return
	}

	u, err := h.Service.Create(r.Context(), actor, dto)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, u.Public())
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	actor, ok := internal.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, r, internal.ErrMissingToken)
		return
	}

	q, err := ParseListQuery(r.URL.Query())
	if err != nil {
		h.WriteError(w, r, err)
		return
	}

	result, err := h.Service.List(r.Context(), actor, q)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := internal.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, r, internal.ErrMissingToken)
		return
	}

	u, err := h.Service.GetByID(r.Context(), actor, chi.URLParam(r, "userId"))
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, u.Public())
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, chi.URLParam(r, "userId"))
}

func (h *Handler) ArchiveUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := internal.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, r, internal.ErrMissingToken)
		return
	}

	u, err := h.Service.Archive(r.Context(), actor, chi.URLParam(r, "userId"))
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, u.Public())
}

func (h *Handler) RestoreUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := internal.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, r, internal.ErrMissingToken)
		return
	}

	u, err := h.Service.Restore(r.Context(), actor, chi.URLParam(r, "userId"))
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, u.Public())
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := internal.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, r, internal.ErrMissingToken)
		return
	}

	u, err := h.Service.Profile(r.Context(), actor)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, u.Public())
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := internal.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, r, internal.ErrMissingToken)
		return
	}
	h.update(w, r, actor.ID)
}

// ChangePassword requires the refresh token so both tokens can be revoked;
// the user has to log in again with the new password.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	actor, ok := internal.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, r, internal.ErrMissingToken)
		return
	}

	refreshToken := h.ExtractRefreshToken(r)
	if refreshToken == "" {
		h.WriteError(w, r, internal.ErrMissingToken.WithDetails(map[string]string{"header": transport.HeaderRefreshToken}))
		return
	}

	var dto ChangePasswordDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteError(w, r, err)
		return
	}

	if err := h.Service.ChangePassword(r.Context(), actor, dto); err != nil {
		h.WriteError(w, r, err)
		return
	}
	if err := h.Sessions.Logout(r.Context(), h.ExtractTokenFromHeader(r), refreshToken); err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.WriteSuccess(w)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := internal.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, r, internal.ErrMissingToken)
		return
	}

	var dto UpdateUserDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteError(w, r, err)
		return
	}

	u, err := h.Service.Update(r.Context(), actor, id, dto)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, u.Public())
}

// ParseListQuery reads page, size, fullName, sortType, descendants and the
// createdAt range.
func ParseListQuery(values url.Values) (ListQuery, error) {
	q := ListQuery{
		FullName: values.Get("fullName"),
		SortType: values.Get("sortType"),
	}

	for _, p := range []struct {
		key string
		dst *int
	}{
		{"page", &q.Page},
		{"size", &q.Size},
	} {
		raw := values.Get(p.key)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return q, internal.NewValidationFieldError(p.key, p.key+" must be a number", internal.ErrCodeValidationFailed)
		}
		*p.dst = v
	}

	if raw := values.Get("descendants"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return q, internal.NewValidationFieldError("descendants", "descendants must be a boolean", internal.ErrCodeValidationFailed)
		}
		q.Descendants = v
	}

	var err error
	if q.DateRange, err = node.ParseDateRange(values); err != nil {
		return q, err
	}
	return q, nil
}

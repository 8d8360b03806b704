package node

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/frahmantamala/orgtree/internal"
	"github.com/frahmantamala/orgtree/internal/transport"
	"github.com/frahmantamala/orgtree/pkg/logger"
	"github.com/go-chi/chi"
)

type ServiceAPI interface {
	Create(ctx context.Context, actor internal.Actor, dto CreateNodeDTO) (*Node, error)
	Update(ctx context.Context, actor internal.Actor, id string, p Patch) (*Node, error)
	Archive(ctx context.Context, actor internal.Actor, id string) (*Node, error)
	Restore(ctx context.Context, actor internal.Actor, id string) (*Node, error)
	List(ctx context.Context, q ListQuery) (*internal.ListResult[*Node], error)
	GetByID(ctx context.Context, id string) (*Node, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
	}
}

func (h *Handler) CreateNode(w http.ResponseWriter, r *http.Request) {
	actor, ok := internal.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, r, internal.ErrMissingToken)
		return
	}

	var dto CreateNodeDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteError(w, r, err)
		return
	}

	n, err := h.Service.Create(r.Context(), actor, dto)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, n)
}

func (h *Handler) ListNodes(w http.ResponseWriter, r *http.Request) {
	q, err := ParseListQuery(r.URL.Query())
	if err != nil {
		h.WriteError(w, r, err)
		return
	}

	result, err := h.Service.List(r.Context(), q)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) GetNode(w http.ResponseWriter, r *http.Request) {
	n, err := h.Service.GetByID(r.Context(), chi.URLParam(r, "nodeId"))
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, n)
}

func (h *Handler) UpdateNode(w http.ResponseWriter, r *http.Request) {
	actor, ok := internal.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, r, internal.ErrMissingToken)
		return
	}

	var patch Patch
	if err := h.DecodeJSON(r, &patch); err != nil {
		h.WriteError(w, r, err)
		return
	}

	n, err := h.Service.Update(r.Context(), actor, chi.URLParam(r, "nodeId"), patch)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, n)
}

func (h *Handler) ArchiveNode(w http.ResponseWriter, r *http.Request) {
	actor, ok := internal.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, r, internal.ErrMissingToken)
		return
	}

	n, err := h.Service.Archive(r.Context(), actor, chi.URLParam(r, "nodeId"))
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, n)
}

func (h *Handler) RestoreNode(w http.ResponseWriter, r *http.Request) {
	actor, ok := internal.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, r, internal.ErrMissingToken)
		return
	}

	n, err := h.Service.Restore(r.Context(), actor, chi.URLParam(r, "nodeId"))
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, n)
}

// ParseListQuery reads page, size, name, sortType, from, to and the
// Filterable keys. from/to are epoch milliseconds and may also be given as
// dateRange[from] / dateRange[to].
func ParseListQuery(values url.Values) (ListQuery, error) {
	q := ListQuery{
		Name:     values.Get("name"),
		SortType: values.Get("sortType"),
		Filters:  make(map[string]string),
	}

	var err error
	if q.Page, err = intParam(values, "page"); err != nil {
		return q, err
	}
	if q.Size, err = intParam(values, "size"); err != nil {
		return q, err
	}
	if q.DateRange, err = ParseDateRange(values); err != nil {
		return q, err
	}
	for _, key := range Filterable {
		if v := values.Get(key); v != "" {
			q.Filters[key] = v
		}
	}
	return q, nil
}

// ParseDateRange is shared with the user listing.
func ParseDateRange(values url.Values) (internal.DateRange, error) {
	var dr internal.DateRange
	for _, bound := range []struct {
		dst  **int64
		keys []string
	}{
		{&dr.From, []string{"from", "dateRange[from]"}},
		{&dr.To, []string{"to", "dateRange[to]"}},
	} {
		for _, key := range bound.keys {
			raw := values.Get(key)
			if raw == "" {
				continue
			}
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return dr, internal.NewValidationFieldError(key, key+" must be an epoch millisecond timestamp", internal.ErrCodeValidationFailed)
			}
			*bound.dst = &v
			break
		}
	}
	return dr, nil
}

func intParam(values url.Values, key string) (int, error) {
	raw := values.Get(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, internal.NewValidationFieldError(key, key+" must be a number", internal.ErrCodeValidationFailed)
	}
	return v, nil
}

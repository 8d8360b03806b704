package node_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"

	"github.com/frahmantamala/orgtree/internal"
	"github.com/frahmantamala/orgtree/internal/node"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type stubNodeService struct {
	createDTO  node.CreateNodeDTO
	patch      node.Patch
	lastID     string
	lastActor  internal.Actor
	lastQuery  node.ListQuery
	err        error
	returnNode *node.Node
}

func (s *stubNodeService) Create(_ context.Context, actor internal.Actor, dto node.CreateNodeDTO) (*node.Node, error) {
	s.lastActor, s.createDTO = actor, dto
	return s.returnNode, s.err
}

func (s *stubNodeService) Update(_ context.Context, actor internal.Actor, id string, p node.Patch) (*node.Node, error) {
	s.lastActor, s.lastID, s.patch = actor, id, p
	return s.returnNode, s.err
}

func (s *stubNodeService) Archive(_ context.Context, actor internal.Actor, id string) (*node.Node, error) {
	s.lastActor, s.lastID = actor, id
	return s.returnNode, s.err
}

func (s *stubNodeService) Restore(_ context.Context, actor internal.Actor, id string) (*node.Node, error) {
	s.lastActor, s.lastID = actor, id
	return s.returnNode, s.err
}

func (s *stubNodeService) List(_ context.Context, q node.ListQuery) (*internal.ListResult[*node.Node], error) {
	s.lastQuery = q
	if s.err != nil {
		return nil, s.err
	}
	return &internal.ListResult[*node.Node]{Total: 1, List: []*node.Node{s.returnNode}}, nil
}

func (s *stubNodeService) GetByID(_ context.Context, id string) (*node.Node, error) {
	s.lastID = id
	return s.returnNode, s.err
}

func withNodeID(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("nodeId", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func withActor(req *http.Request, actor internal.Actor) *http.Request {
	return req.WithContext(internal.ContextWithActor(req.Context(), actor))
}

var _ = Describe("Node Handler", func() {
	var (
		svc     *stubNodeService
		handler *node.Handler
		manager internal.Actor
	)

	BeforeEach(func() {
		svc = &stubNodeService{returnNode: &node.Node{ID: "n-1", Name: "East", Type: "office", Ancestors: []string{}, Children: []string{}}}
		handler = node.NewHandler(svc)
		manager = internal.Actor{ID: "user-1", Role: internal.RoleManager}
	})

	It("should create a node for the authenticated actor", func() {
		body := strings.NewReader(`{"name":"East","type":"office","parent":"root"}`)
		req := withActor(httptest.NewRequest(http.MethodPost, "/nodes", body), manager)
		w := httptest.NewRecorder()

		handler.CreateNode(w, req)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(svc.lastActor).To(Equal(manager))
		Expect(svc.createDTO).To(Equal(node.CreateNodeDTO{Name: "East", Type: "office", Parent: "root"}))

		var env struct {
			Success bool      `json:"success"`
			Result  node.Node `json:"result"`
		}
		Expect(json.NewDecoder(w.Body).Decode(&env)).To(Succeed())
		Expect(env.Success).To(BeTrue())
		Expect(env.Result.ID).To(Equal("n-1"))
	})

	It("should refuse mutations without an actor", func() {
		w := httptest.NewRecorder()
		handler.CreateNode(w, httptest.NewRequest(http.MethodPost, "/nodes", strings.NewReader(`{}`)))
		Expect(w.Code).To(Equal(http.StatusUnauthorized))
	})

	It("should pass the patch and path id through on update", func() {
		req := httptest.NewRequest(http.MethodPut, "/nodes/n-1", strings.NewReader(`{"location":"Jakarta","children":["a","a"]}`))
		req = withActor(withNodeID(req, "n-1"), manager)
		w := httptest.NewRecorder()

		handler.UpdateNode(w, req)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(svc.lastID).To(Equal("n-1"))
		Expect(*svc.patch.Location).To(Equal("Jakarta"))
		Expect(*svc.patch.Children).To(Equal([]string{"a", "a"}))
		Expect(svc.patch.Type).To(BeNil())
	})

	It("should map service errors onto the taxonomy", func() {
		svc.err = internal.ErrNodeHasChildren
		req := withActor(withNodeID(httptest.NewRequest(http.MethodDelete, "/nodes/n-1", nil), "n-1"), manager)
		w := httptest.NewRecorder()

		handler.ArchiveNode(w, req)

		Expect(w.Code).To(Equal(http.StatusMethodNotAllowed))
		Expect(w.Body.String()).To(ContainSubstring(string(internal.ErrCodeNodeHasChildren)))
	})

	It("should restore by path id", func() {
		req := withActor(withNodeID(httptest.NewRequest(http.MethodPut, "/nodes/n-1/restore", nil), "n-1"), manager)
		w := httptest.NewRecorder()

		handler.RestoreNode(w, req)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(svc.lastID).To(Equal("n-1"))
	})

	It("should report a missing node as 404", func() {
		svc.err = internal.ErrNodeNotFound
		w := httptest.NewRecorder()

		handler.GetNode(w, withNodeID(httptest.NewRequest(http.MethodGet, "/nodes/x", nil), "x"))

		Expect(w.Code).To(Equal(http.StatusNotFound))
	})

	It("should reject a non numeric page", func() {
		w := httptest.NewRecorder()
		handler.ListNodes(w, httptest.NewRequest(http.MethodGet, "/nodes?page=two", nil))
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	Describe("ParseListQuery", func() {
		It("should read paging, name, sort, filters and the date range", func() {
			values := url.Values{
				"page":            {"2"},
				"size":            {"5"},
				"name":            {"east"},
				"sortType":        {"name"},
				"type":            {"store"},
				"unknown":         {"x"},
				"dateRange[from]": {"1000"},
				"to":              {"2000"},
			}

			q, err := node.ParseListQuery(values)

			Expect(err).NotTo(HaveOccurred())
			Expect(q.Page).To(Equal(2))
			Expect(q.Size).To(Equal(5))
			Expect(q.Name).To(Equal("east"))
			Expect(q.SortType).To(Equal(node.SortByName))
			Expect(q.Filters).To(Equal(map[string]string{"type": "store"}))
			Expect(*q.DateRange.From).To(BeEquivalentTo(1000))
			Expect(*q.DateRange.To).To(BeEquivalentTo(2000))
		})

		It("should reject a malformed timestamp", func() {
			_, err := node.ParseListQuery(url.Values{"from": {"yesterday"}})
			Expect(err).To(HaveOccurred())
		})
	})
})

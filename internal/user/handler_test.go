package user_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"

	"github.com/frahmantamala/orgtree/internal"
	"github.com/frahmantamala/orgtree/internal/transport"
	"github.com/frahmantamala/orgtree/internal/user"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type stubUserService struct {
	user.ServiceAPI
	updatedID   string
	updateDTO   user.UpdateUserDTO
	passwordDTO user.ChangePasswordDTO
	archivedID  string
	err         error
}

func (s *stubUserService) Update(_ context.Context, _ internal.Actor, id string, dto user.UpdateUserDTO) (*user.User, error) {
	s.updatedID, s.updateDTO = id, dto
	if s.err != nil {
		return nil, s.err
	}
	return &user.User{ID: id, PasswordHash: "hash", FullName: "Ana"}, nil
}

func (s *stubUserService) ChangePassword(_ context.Context, _ internal.Actor, dto user.ChangePasswordDTO) error {
	s.passwordDTO = dto
	return s.err
}

func (s *stubUserService) Archive(_ context.Context, _ internal.Actor, id string) (*user.User, error) {
	s.archivedID = id
	if s.err != nil {
		return nil, s.err
	}
	return &user.User{ID: id, PasswordHash: "hash", DeletedAt: 1}, nil
}

type recordingSessions struct {
	access, refresh string
	calls           int
}

func (r *recordingSessions) Logout(_ context.Context, accessToken, refreshToken string) error {
	r.access, r.refresh = accessToken, refreshToken
	r.calls++
	return nil
}

var _ = Describe("User Handler", func() {
	var (
		svc      *stubUserService
		sessions *recordingSessions
		handler  *user.Handler
		employee internal.Actor
	)

	BeforeEach(func() {
		svc = &stubUserService{}
		sessions = &recordingSessions{}
		handler = user.NewHandler(svc, sessions)
		employee = internal.Actor{ID: "user-7", Role: internal.RoleEmployee}
	})

	actorRequest := func(method, target, body string) *http.Request {
		req := httptest.NewRequest(method, target, strings.NewReader(body))
		return req.WithContext(internal.ContextWithActor(req.Context(), employee))
	}

	It("should update the caller's own profile", func() {
		w := httptest.NewRecorder()
		handler.UpdateProfile(w, actorRequest(http.MethodPut, "/users/profile", `{"fullName":"Ana"}`))

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(svc.updatedID).To(Equal("user-7"))
		Expect(*svc.updateDTO.FullName).To(Equal("Ana"))
		Expect(svc.updateDTO.Gender).To(BeNil())
		Expect(w.Body.String()).NotTo(ContainSubstring("hash"))
	})

	It("should archive the user named in the path", func() {
		req := actorRequest(http.MethodDelete, "/admin/users/user-9", "")
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("userId", "user-9")
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
		w := httptest.NewRecorder()

		handler.ArchiveUser(w, req)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(svc.archivedID).To(Equal("user-9"))
	})

	Describe("ChangePassword", func() {
		It("should require the refresh token header", func() {
			w := httptest.NewRecorder()
			handler.ChangePassword(w, actorRequest(http.MethodPut, "/users/profile/password", `{"oldPassword":"secret-1","newPassword":"secret-2"}`))

			Expect(w.Code).To(Equal(http.StatusUnauthorized))
			Expect(svc.passwordDTO.NewPassword).To(BeEmpty())
		})

		It("should revoke both tokens after the change", func() {
			req := actorRequest(http.MethodPut, "/users/profile/password", `{"oldPassword":"secret-1","newPassword":"secret-2"}`)
			req.Header.Set(transport.HeaderAuthorization, "Bearer access-1")
			req.Header.Set(transport.HeaderRefreshToken, "refresh-1")
			w := httptest.NewRecorder()

			handler.ChangePassword(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(svc.passwordDTO.NewPassword).To(Equal("secret-2"))
			Expect(sessions.access).To(Equal("access-1"))
			Expect(sessions.refresh).To(Equal("refresh-1"))
		})

		It("should keep the session when the old password is wrong", func() {
			svc.err = internal.ErrPasswordMismatch
			req := actorRequest(http.MethodPut, "/users/profile/password", `{"oldPassword":"wrong-1","newPassword":"secret-2"}`)
			req.Header.Set(transport.HeaderAuthorization, "Bearer access-1")
			req.Header.Set(transport.HeaderRefreshToken, "refresh-1")
			w := httptest.NewRecorder()

			handler.ChangePassword(w, req)

			Expect(w.Code).To(Equal(http.StatusMethodNotAllowed))
			Expect(sessions.calls).To(BeZero())
		})
	})

	Describe("ParseListQuery", func() {
		It("should read the descendants flag and name filter", func() {
			q, err := user.ParseListQuery(url.Values{"descendants": {"true"}, "fullName": {"an"}, "size": {"3"}})

			Expect(err).NotTo(HaveOccurred())
			Expect(q.Descendants).To(BeTrue())
			Expect(q.FullName).To(Equal("an"))
			Expect(q.Size).To(Equal(3))
		})

		It("should reject a malformed descendants flag", func() {
			_, err := user.ParseListQuery(url.Values{"descendants": {"maybe"}})
			Expect(err).To(HaveOccurred())
		})
	})
})

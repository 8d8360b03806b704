package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/frahmantamala/orgtree/internal"
	"github.com/frahmantamala/orgtree/internal/transport"
	"github.com/frahmantamala/orgtree/pkg/logger"
	chiMiddleware "github.com/go-chi/chi/middleware"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestMiddleware(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Middleware Suite")
}

type stubAuthenticator struct {
	actor      internal.Actor
	authErr    error
	renewed    string
	renewErr   error
	authCalls  int
	renewCalls int
}

func (s *stubAuthenticator) Authenticate(ctx context.Context, accessToken string) (internal.Actor, error) {
	s.authCalls++
	return s.actor, s.authErr
}

func (s *stubAuthenticator) RenewAccess(ctx context.Context, accessToken string) (string, error) {
	s.renewCalls++
	if s.renewErr != nil {
		return "", s.renewErr
	}
	if s.renewed == "" {
		return accessToken, nil
	}
	return s.renewed, nil
}

func decodeEnvelope(rec *httptest.ResponseRecorder) map[string]interface{} {
	var env map[string]interface{}
	ExpectWithOffset(1, json.Unmarshal(rec.Body.Bytes(), &env)).To(Succeed())
	return env
}

var _ = Describe("Middleware", func() {
	var (
		base    *transport.BaseHandler
		logBuf  *bytes.Buffer
		reached bool
		seen    *http.Request
		next    http.Handler
	)

	BeforeEach(func() {
		logBuf = &bytes.Buffer{}
		base = transport.NewBaseHandler(logger.InitWriter(logBuf, "debug", "json"))
		reached = false
		seen = nil
		next = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reached = true
			seen = r
			w.WriteHeader(http.StatusOK)
		})
	})

	Describe("Authenticate", func() {
		var authn *stubAuthenticator

		BeforeEach(func() {
			authn = &stubAuthenticator{actor: internal.Actor{ID: "u-1", Role: internal.RoleManager, Email: "m@example.com"}}
		})

		It("should reject a request without a bearer token", func() {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/nodes", nil)

			Authenticate(authn, base)(next).ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			Expect(reached).To(BeFalse())
			Expect(authn.authCalls).To(Equal(0))
		})

		It("should pass through the error from the authenticator", func() {
			authn.authErr = internal.ErrInvalidToken
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/nodes", nil)
			req.Header.Set(transport.HeaderAuthorization, "Bearer revoked")

			Authenticate(authn, base)(next).ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			Expect(decodeEnvelope(rec)["success"]).To(BeFalse())
			Expect(reached).To(BeFalse())
		})

		It("should store the actor in the request context", func() {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/nodes", nil)
			req.Header.Set(transport.HeaderAuthorization, "Bearer current")

			Authenticate(authn, base)(next).ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			actor, ok := internal.ActorFromContext(seen.Context())
			Expect(ok).To(BeTrue())
			Expect(actor.ID).To(Equal("u-1"))
			Expect(rec.Header().Get(transport.HeaderAuthorization)).To(BeEmpty())
		})

		It("should hand a renewed token back to the client and downstream", func() {
			authn.renewed = "fresh"
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/users/logout", nil)
			req.Header.Set(transport.HeaderAuthorization, "Bearer stale")

			Authenticate(authn, base)(next).ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get(transport.HeaderAuthorization)).To(Equal("Bearer fresh"))
			Expect(base.ExtractTokenFromHeader(seen)).To(Equal("fresh"))
		})

		It("should fail the request when renewal fails", func() {
			authn.renewErr = internal.NewInternalError("ledger down", nil)
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/nodes", nil)
			req.Header.Set(transport.HeaderAuthorization, "Bearer stale")

			Authenticate(authn, base)(next).ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			Expect(reached).To(BeFalse())
		})
	})

	Describe("RequireRoles", func() {
		It("should allow a listed role", func() {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(internal.ContextWithActor(req.Context(), internal.Actor{ID: "a", Role: internal.RoleAdmin}))

			RequireRoles(base, internal.RoleAdmin, internal.RoleManager)(next).ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(reached).To(BeTrue())
		})

		It("should forbid a role outside the list", func() {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(internal.ContextWithActor(req.Context(), internal.Actor{ID: "e", Role: internal.RoleEmployee}))

			RequireRoles(base, internal.RoleAdmin, internal.RoleManager)(next).ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusForbidden))
			Expect(reached).To(BeFalse())
		})

		It("should treat a missing actor as unauthenticated", func() {
			rec := httptest.NewRecorder()

			RequireRoles(base, internal.RoleAdmin)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("CORS", func() {
		It("should answer preflight requests without reaching the handler", func() {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodOptions, "/api/v1/nodes", nil)
			req.Header.Set("Origin", "https://admin.example.com")

			CORS("https://admin.example.com")(next).ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusNoContent))
			Expect(reached).To(BeFalse())
			Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("https://admin.example.com"))
			Expect(rec.Header().Get("Access-Control-Expose-Headers")).To(ContainSubstring(transport.HeaderRefreshToken))
		})

		It("should not echo an origin that is not allowed", func() {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/nodes", nil)
			req.Header.Set("Origin", "https://evil.example.com")

			CORS("https://admin.example.com")(next).ServeHTTP(rec, req)

			Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(BeEmpty())
			Expect(reached).To(BeTrue())
		})
	})

	Describe("Recovery", func() {
		It("should turn a panic into a 500 envelope", func() {
			rec := httptest.NewRecorder()
			boom := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				panic("secret internals")
			})

			Recovery(base)(boom).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			Expect(rec.Body.String()).NotTo(ContainSubstring("secret internals"))
			Expect(logBuf.String()).To(ContainSubstring("panic recovered"))
		})
	})

	Describe("RequestID", func() {
		It("should echo an incoming trace id", func() {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(HeaderTraceID, "trace-123")

			RequestID(next).ServeHTTP(rec, req)

			Expect(rec.Header().Get(HeaderTraceID)).To(Equal("trace-123"))
		})

		It("should mint a trace id when none is sent", func() {
			rec := httptest.NewRecorder()

			RequestID(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			Expect(rec.Header().Get(HeaderTraceID)).NotTo(BeEmpty())
		})
	})

	Describe("RequestLogger", func() {
		It("should filter credentials from headers and bodies", func() {
			rec := httptest.NewRecorder()
			body := `{"email":"m@example.com","password":"hunter22","nested":{"refreshToken":"r-0xdeadbeef"}}`
			req := httptest.NewRequest(http.MethodPost, "/api/v1/users/login", strings.NewReader(body))
			req.Header.Set(transport.HeaderAuthorization, "Bearer top-secret")

			RequestLogger(next).ServeHTTP(rec, req)

			logged := logBuf.String()
			Expect(logged).To(ContainSubstring("incoming request"))
			Expect(logged).To(ContainSubstring("m@example.com"))
			Expect(logged).NotTo(ContainSubstring("hunter22"))
			Expect(logged).NotTo(ContainSubstring("top-secret"))
			Expect(logged).NotTo(ContainSubstring("r-0xdeadbeef"))
		})

		It("should leave the request body readable downstream", func() {
			rec := httptest.NewRecorder()
			var got string
			echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var buf bytes.Buffer
				buf.ReadFrom(r.Body)
				got = buf.String()
			})

			RequestLogger(echo).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Store"}`)))

			Expect(got).To(Equal(`{"name":"Store"}`))
		})
	})

	Describe("RateLimiter", func() {
		It("should let everything through when disabled", func() {
			rl := NewRateLimiter(internal.RateLimitConfig{Enabled: false, PerSecond: 1, Burst: 1}, base)
			handler := rl.Middleware(next)

			for i := 0; i < 5; i++ {
				rec := httptest.NewRecorder()
				handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
				Expect(rec.Code).To(Equal(http.StatusOK))
			}
		})

		It("should keep separate buckets per client", func() {
			rl := NewRateLimiter(internal.RateLimitConfig{Enabled: true, PerSecond: 1, Burst: 1}, base)
			handler := rl.Middleware(next)

			first := httptest.NewRequest(http.MethodPost, "/login", nil)
			first.RemoteAddr = "10.0.0.1:40001"
			second := httptest.NewRequest(http.MethodPost, "/login", nil)
			second.RemoteAddr = "10.0.0.2:40001"

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, first)
			Expect(rec.Code).To(Equal(http.StatusOK))

			rec = httptest.NewRecorder()
			handler.ServeHTTP(rec, first)
			Expect(rec.Code).To(Equal(http.StatusTooManyRequests))
			Expect(rec.Header().Get("Retry-After")).To(Equal("1"))

			rec = httptest.NewRecorder()
			handler.ServeHTTP(rec, second)
			Expect(rec.Code).To(Equal(http.StatusOK))
		})

		It("should not let a forged X-Forwarded-For open a fresh bucket", func() {
			rl := NewRateLimiter(internal.RateLimitConfig{Enabled: true, PerSecond: 1, Burst: 1}, base)
			handler := rl.Middleware(next)

			codes := make([]int, 0, 3)
			for i := 0; i < 3; i++ {
				req := httptest.NewRequest(http.MethodPost, "/login", nil)
				req.RemoteAddr = "203.0.113.7:51000"
				req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
				rec := httptest.NewRecorder()
				handler.ServeHTTP(rec, req)
				codes = append(codes, rec.Code)
			}

			Expect(codes).To(Equal([]int{http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}))
		})

		It("should key on the forwarded address once RealIP rewrote it", func() {
			rl := NewRateLimiter(internal.RateLimitConfig{Enabled: true, PerSecond: 1, Burst: 1}, base)
			handler := chiMiddleware.RealIP(rl.Middleware(next))

			for _, client := range []string{"198.51.100.1", "198.51.100.2"} {
				req := httptest.NewRequest(http.MethodPost, "/login", nil)
				req.RemoteAddr = "10.0.0.1:8443"
				req.Header.Set("X-Forwarded-For", client)
				rec := httptest.NewRecorder()
				handler.ServeHTTP(rec, req)
				Expect(rec.Code).To(Equal(http.StatusOK))
			}
		})
	})
})

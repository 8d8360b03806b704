package auth_test

import (
	"context"
	"errors"

	"github.com/frahmantamala/orgtree/internal"
	"github.com/frahmantamala/orgtree/internal/auth"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeNodes map[string]*auth.NodeScope

func (f fakeNodes) NodeScope(_ context.Context, id string) (*auth.NodeScope, error) {
	n, ok := f[id]
	if !ok {
		return nil, internal.ErrNodeNotFound
	}
	return n, nil
}

type fakeMembers struct {
	nodeOf map[string]string
	err    error
}

func (f fakeMembers) NodeOf(_ context.Context, userID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	nodeID, ok := f.nodeOf[userID]
	if !ok {
		return "", internal.ErrUserNotFound
	}
	return nodeID, nil
}

var _ = Describe("Evaluator", func() {
	// root -> east -> shop, root -> west
	var (
		nodes     fakeNodes
		members   fakeMembers
		evaluator *auth.Evaluator
		ctx       context.Context
		manager   internal.Actor
	)

	BeforeEach(func() {
		nodes = fakeNodes{
			"root": {ID: "root", Ancestors: []string{}, Children: []string{"east", "west"}, CreatedBy: "admin", ManagedBy: "admin"},
			"east": {ID: "east", Ancestors: []string{"root"}, Children: []string{"shop"}, CreatedBy: "admin", ManagedBy: "m-east"},
			"west": {ID: "west", Ancestors: []string{"root"}, Children: []string{}, CreatedBy: "admin", ManagedBy: "admin"},
			"shop": {ID: "shop", Ancestors: []string{"root", "east"}, Children: []string{}, CreatedBy: "m-east", ManagedBy: "m-east"},
		}
		members = fakeMembers{nodeOf: map[string]string{"m-east": "east", "m-root": "root"}}
		evaluator = auth.NewEvaluator(nodes, members)
		ctx = context.Background()
		manager = internal.Actor{ID: "m-east", Role: internal.RoleManager}
	})

	Describe("CanActOnNode", func() {
		It("should always allow the admin", func() {
			ok, err := evaluator.CanActOnNode(ctx, internal.Actor{ID: internal.AdminID, Role: internal.RoleAdmin}, "missing")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
		})

		DescribeTable("manager of east",
			func(target string, expected bool) {
				ok, err := evaluator.CanActOnNode(ctx, manager, target)
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(Equal(expected))
			},
			Entry("own node", "east", true),
			Entry("direct child", "shop", true),
			Entry("sibling", "west", false),
			Entry("parent", "root", false),
			Entry("unknown node", "missing", false),
		)

		It("should reach deep descendants through ancestors", func() {
			// Given
			nodes["shelf"] = &auth.NodeScope{ID: "shelf", Ancestors: []string{"root", "east", "shop"}}

			// When
			ok, err := evaluator.CanActOnNode(ctx, manager, "shelf")

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
		})

		It("should never allow employees", func() {
			members.nodeOf["e-east"] = "east"
			ok, err := evaluator.CanActOnNode(ctx, internal.Actor{ID: "e-east", Role: internal.RoleEmployee}, "east")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("should deny a manager without a stored record", func() {
			ok, err := evaluator.CanActOnNode(ctx, internal.Actor{ID: "ghost", Role: internal.RoleManager}, "east")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("should surface store failures", func() {
			evaluator = auth.NewEvaluator(nodes, fakeMembers{err: errors.New("store down")})
			_, err := evaluator.CanActOnNode(ctx, manager, "east")
			Expect(err).To(MatchError("store down"))
		})
	})

	Describe("CanManageNode", func() {
		It("should be based on ownership, not tree position", func() {
			// m-root sits above east but neither created nor manages it
			Expect(evaluator.CanManageNode("m-root", *nodes["east"])).To(BeFalse())
			Expect(evaluator.CanManageNode("m-east", *nodes["east"])).To(BeTrue())
		})

		It("should accept the creator as well as the manager", func() {
			target := auth.NodeScope{ID: "x", CreatedBy: "creator", ManagedBy: "someone-else"}
			Expect(evaluator.CanManageNode("creator", target)).To(BeTrue())
			Expect(evaluator.CanManageNode("someone-else", target)).To(BeTrue())
			Expect(evaluator.CanManageNode("stranger", target)).To(BeFalse())
		})
	})
})

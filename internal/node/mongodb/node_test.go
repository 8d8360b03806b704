package mongodb_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/frahmantamala/orgtree/internal"
	"github.com/frahmantamala/orgtree/internal/node"
	nodeMongo "github.com/frahmantamala/orgtree/internal/node/mongodb"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestNodeMongo(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Node Mongo Suite")
}

var _ = Describe("Node Mongo Repository", func() {
	var (
		client *mongo.Client
		db     *mongo.Database
		repo   *nodeMongo.NodeRepository
		ctx    context.Context
	)

	BeforeEach(func() {
		uri := os.Getenv("MONGO_TEST_URI")
		if uri == "" {
			Skip("MONGO_TEST_URI not set")
		}
		ctx = context.Background()

		var err error
		client, err = mongo.Connect(ctx, options.Client().ApplyURI(uri).SetServerSelectionTimeout(5*time.Second))
		Expect(err).NotTo(HaveOccurred())
		db = client.Database("orgtree_test_" + uuid.NewString()[:8])
		repo = nodeMongo.NewNodeRepository(db)
		Expect(repo.EnsureIndexes(ctx)).To(Succeed())
	})

	AfterEach(func() {
		if db != nil {
			Expect(db.Drop(ctx)).To(Succeed())
			Expect(client.Disconnect(ctx)).To(Succeed())
		}
	})

	It("should keep every child under concurrent $addToSet", func() {
		// Given
		root := &node.Node{Name: "HQ", Type: "office", Ancestors: []string{}, Children: []string{}}
		Expect(repo.Create(ctx, root)).To(Succeed())

		// When
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				Expect(repo.AddChild(ctx, root.ID, uuid.NewString(), 2000)).To(Succeed())
			}()
		}
		wg.Wait()

		// Then
		stored, err := repo.GetByID(ctx, root.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Children).To(HaveLen(20))
	})

	It("should map duplicate names and missing documents", func() {
		root := &node.Node{Name: "HQ", Type: "office", Ancestors: []string{}, Children: []string{}}
		Expect(repo.Create(ctx, root)).To(Succeed())

		dup := &node.Node{Name: "HQ", Type: "store", Ancestors: []string{}, Children: []string{}}
		Expect(repo.Create(ctx, dup)).To(MatchError(internal.ErrNodeNameTaken))

		_, err := repo.GetByID(ctx, "missing")
		Expect(err).To(MatchError(internal.ErrNodeNotFound))
	})

	It("should list descendants through the ancestors array", func() {
		root := &node.Node{Name: "HQ", Type: "office", Ancestors: []string{}, Children: []string{}, CreatedAt: 1}
		Expect(repo.Create(ctx, root)).To(Succeed())
		parent := root.ID
		child := &node.Node{Name: "Shop", Type: "store", Parent: &parent, Ancestors: []string{root.ID}, Children: []string{}, CreatedAt: 2}
		Expect(repo.Create(ctx, child)).To(Succeed())

		ids, err := repo.DescendantIDs(ctx, root.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(ids).To(Equal([]string{child.ID}))
	})

	It("should refuse a second root document", func() {
		root := &node.Node{Name: "HQ", Type: "office", Ancestors: []string{}, Children: []string{}}
		Expect(repo.Create(ctx, root)).To(Succeed())

		other := &node.Node{Name: "Other HQ", Type: "office", Ancestors: []string{}, Children: []string{}}
		Expect(repo.Create(ctx, other)).To(MatchError(internal.ErrParentRequired))
	})

	It("should keep children linked after a patch that does not replace them", func() {
		root := &node.Node{Name: "HQ", Type: "office", Ancestors: []string{}, Children: []string{}}
		Expect(repo.Create(ctx, root)).To(Succeed())
		Expect(repo.AddChild(ctx, root.ID, "c-1", 2000)).To(Succeed())

		root.Location = "Berlin"
		Expect(repo.Update(ctx, root, false)).To(Succeed())

		stored, err := repo.GetByID(ctx, root.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Location).To(Equal("Berlin"))
		Expect(stored.Children).To(Equal([]string{"c-1"}))
	})

	It("should archive only a node without children and link only under a live parent", func() {
		root := &node.Node{Name: "HQ", Type: "office", Ancestors: []string{}, Children: []string{}}
		Expect(repo.Create(ctx, root)).To(Succeed())
		Expect(repo.AddChild(ctx, root.ID, "c-1", 2000)).To(Succeed())

		Expect(repo.Archive(ctx, root.ID, 3000)).To(MatchError(internal.ErrNodeHasChildren))

		Expect(repo.RemoveChild(ctx, root.ID, "c-1", 3000)).To(Succeed())
		Expect(repo.Archive(ctx, root.ID, 3000)).To(Succeed())
		Expect(repo.Archive(ctx, root.ID, 3000)).To(MatchError(internal.ErrNodeNotFound))
		Expect(repo.AddChild(ctx, root.ID, "c-2", 4000)).To(MatchError(internal.ErrNodeNotFound))
	})
})

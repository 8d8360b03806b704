package mongodb_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/frahmantamala/orgtree/internal"
	"github.com/frahmantamala/orgtree/internal/user"
	userMongo "github.com/frahmantamala/orgtree/internal/user/mongodb"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestUserMongo(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "User Mongo Suite")
}

var _ = Describe("User Mongo Repository", func() {
	var (
		client *mongo.Client
		db     *mongo.Database
		repo   *userMongo.UserRepository
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
		repo = userMongo.NewUserRepository(db)
		Expect(repo.EnsureIndexes(ctx)).To(Succeed())
	})

	AfterEach(func() {
		if db != nil {
			Expect(db.Drop(ctx)).To(Succeed())
			Expect(client.Disconnect(ctx)).To(Succeed())
		}
	})

	It("should round-trip a user and reject a duplicate email", func() {
		u := &user.User{Email: "ana@example.com", PasswordHash: "hash", Role: internal.RoleEmployee, NodeID: "n-1", CreatedAt: 1}
		Expect(repo.Create(ctx, u)).To(Succeed())

		stored, err := repo.GetByEmail(ctx, "ana@example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.PasswordHash).To(Equal("hash"))

		dup := &user.User{Email: "ana@example.com", PasswordHash: "hash", Role: internal.RoleEmployee, NodeID: "n-2"}
		Expect(repo.Create(ctx, dup)).To(MatchError(internal.ErrEmailTaken))
	})

	It("should scope listings and omit the hash", func() {
		for i, nodeID := range []string{"n-1", "n-1", "n-2"} {
			u := &user.User{Email: uuid.NewString() + "@example.com", PasswordHash: "hash", Role: internal.RoleEmployee, NodeID: nodeID, CreatedAt: int64(i)}
			Expect(repo.Create(ctx, u)).To(Succeed())
		}

		users, total, err := repo.List(ctx, user.ListQuery{NodeIDs: []string{"n-1"}}.Normalize(20))
		Expect(err).NotTo(HaveOccurred())
		Expect(total).To(BeEquivalentTo(2))
		for _, u := range users {
			Expect(u.PasswordHash).To(BeEmpty())
		}
	})
})

package postgres_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/frahmantamala/orgtree/internal"
	userDatamodel "github.com/frahmantamala/orgtree/internal/core/datamodel/user"
	"github.com/frahmantamala/orgtree/internal/user"
	userPostgres "github.com/frahmantamala/orgtree/internal/user/postgres"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestUserPostgres(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "User Postgres Suite")
}

var _ = Describe("User PostgreSQL Repository", func() {
	var (
		db   *gorm.DB
		repo user.Repository
		ctx  context.Context
	)

	create := func(email, fullName string, role internal.Role, nodeID string, createdAt int64) *user.User {
		u := &user.User{
			Email:        email,
			PasswordHash: "hash",
			FullName:     fullName,
			Gender:       "male",
			Role:         role,
			NodeID:       nodeID,
			CreatedAt:    createdAt,
			UpdatedAt:    createdAt,
		}
		Expect(repo.Create(ctx, u)).To(Succeed())
		return u
	}

	BeforeEach(func() {
		var err error
		dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
		db, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{
			Logger:         logger.Default.LogMode(logger.Silent),
			TranslateError: true,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(db.AutoMigrate(&userDatamodel.User{})).To(Succeed())

		repo = userPostgres.NewUserRepository(db)
		ctx = context.Background()
	})

	AfterEach(func() {
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	Describe("Create", func() {
		It("should assign an id and persist every field", func() {
			u := create("ana@example.com", "Ana", internal.RoleManager, "node-1", 1000)
			Expect(u.ID).To(HaveLen(36))

			stored, err := repo.GetByID(ctx, u.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(Equal(u))
		})

		It("should reject a duplicate email", func() {
			create("ana@example.com", "Ana", internal.RoleManager, "node-1", 1000)

			dup := &user.User{Email: "ana@example.com", PasswordHash: "hash", Role: internal.RoleEmployee, NodeID: "node-2"}
			Expect(repo.Create(ctx, dup)).To(MatchError(internal.ErrEmailTaken))
		})
	})

	Describe("Reads", func() {
		It("should hide archived users from email lookups only", func() {
			u := create("ana@example.com", "Ana", internal.RoleEmployee, "node-1", 1000)
			Expect(repo.SetDeletedAt(ctx, u.ID, 2000, 2000)).To(Succeed())

			_, err := repo.GetByEmail(ctx, "ana@example.com")
			Expect(err).To(MatchError(internal.ErrUserNotFound))

			stored, err := repo.GetByID(ctx, u.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Archived()).To(BeTrue())
		})

		It("should report a missing id", func() {
			_, err := repo.GetByID(ctx, "missing")
			Expect(err).To(MatchError(internal.ErrUserNotFound))
		})
	})

	Describe("Writes", func() {
		It("should update the profile columns", func() {
			u := create("ana@example.com", "Ana", internal.RoleEmployee, "node-1", 1000)
			u.FullName = "Ana Maria"
			u.Gender = "female"
			u.Role = internal.RoleManager
			u.UpdatedAt = 3000

			Expect(repo.Update(ctx, u)).To(Succeed())

			stored, _ := repo.GetByID(ctx, u.ID)
			Expect(stored.FullName).To(Equal("Ana Maria"))
			Expect(stored.Gender).To(Equal("female"))
			Expect(stored.Role).To(Equal(internal.RoleEmployee))
			Expect(stored.UpdatedAt).To(BeEquivalentTo(3000))
		})

		It("should replace the password hash", func() {
			u := create("ana@example.com", "Ana", internal.RoleEmployee, "node-1", 1000)
			Expect(repo.SetPassword(ctx, u.ID, "new-hash", 4000)).To(Succeed())

			stored, _ := repo.GetByID(ctx, u.ID)
			Expect(stored.PasswordHash).To(Equal("new-hash"))
		})

		It("should report a missing user", func() {
			Expect(repo.SetPassword(ctx, "missing", "h", 1)).To(MatchError(internal.ErrUserNotFound))
		})
	})

	Describe("List", func() {
		var me *user.User

		BeforeEach(func() {
			me = create("manager@example.com", "Maya Manager", internal.RoleManager, "east", 1000)
			create("budi@example.com", "Budi", internal.RoleEmployee, "east", 2000)
			create("citra@example.com", "Citra", internal.RoleEmployee, "shop", 3000)
			create("dewi@example.com", "Dewi", internal.RoleManager, "west", 4000)
		})

		It("should default to newest first", func() {
			users, total, err := repo.List(ctx, user.ListQuery{}.Normalize(20))
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(BeEquivalentTo(4))
			Expect(users[0].Email).To(Equal("dewi@example.com"))
		})

		It("should apply node, role and self exclusion scoping", func() {
			q := user.ListQuery{
				NodeIDs:   []string{"east", "shop"},
				Role:      internal.RoleEmployee,
				ExcludeID: me.ID,
				SortType:  user.SortByFullName,
			}.Normalize(20)

			users, total, err := repo.List(ctx, q)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(BeEquivalentTo(2))
			Expect(users[0].FullName).To(Equal("Budi"))
			Expect(users[1].FullName).To(Equal("Citra"))
		})

		It("should match names case-insensitively within a date range", func() {
			from := int64(1500)
			q := user.ListQuery{FullName: "I", DateRange: internal.DateRange{From: &from}}.Normalize(20)

			users, total, err := repo.List(ctx, q)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(BeEquivalentTo(3))
			Expect(users).To(HaveLen(3))
		})

		It("should match LIKE wildcards literally", func() {
			create("promo@example.com", "Ika_Promo", internal.RoleEmployee, "east", 5000)

			users, total, err := repo.List(ctx, user.ListQuery{FullName: "_"}.Normalize(20))
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(BeEquivalentTo(1))
			Expect(users[0].FullName).To(Equal("Ika_Promo"))

			_, total, err = repo.List(ctx, user.ListQuery{FullName: "%"}.Normalize(20))
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(BeZero())
		})

		It("should return nothing for an empty node scope", func() {
			_, total, err := repo.List(ctx, user.ListQuery{NodeIDs: []string{}}.Normalize(20))
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(BeZero())
		})
	})
})

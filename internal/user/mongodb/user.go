package mongodb

import (
	"context"
	"errors"
	"regexp"

	"github.com/frahmantamala/orgtree/internal"
	userDatamodel "github.com/frahmantamala/orgtree/internal/core/datamodel/user"
	"github.com/frahmantamala/orgtree/internal/user"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const Collection = "users"

type UserRepository struct {
	collection *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{collection: db.Collection(Collection)}
}

func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "nodeId", Value: 1}, {Key: "deletedAt", Value: 1}}},
	})
	return err
}

func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	if u.ID == "" {
		u.ID = primitive.NewObjectID().Hex()
	}
	_, err := r.collection.InsertOne(ctx, user.ToDataModel(u))
	if mongo.IsDuplicateKeyError(err) {
		return internal.ErrEmailTaken
	}
	if err != nil {
		return internal.NewInternalError("failed to create user", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return r.findOne(ctx, bson.M{"email": email, "deletedAt": 0})
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*user.User, error) {
	var rec userDatamodel.User
	err := r.collection.FindOne(ctx, filter).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, internal.ErrUserNotFound
	}
	if err != nil {
		return nil, internal.NewInternalError("failed to get user", err)
	}
	return user.FromDataModel(&rec), nil
}

func (r *UserRepository) Update(ctx context.Context, u *user.User) error {
	return r.set(ctx, u.ID, bson.M{
		"fullName":  u.FullName,
		"gender":    u.Gender,
		"updatedAt": u.UpdatedAt,
	})
}

func (r *UserRepository) SetPassword(ctx context.Context, id, hash string, updatedAt int64) error {
	return r.set(ctx, id, bson.M{"password": hash, "updatedAt": updatedAt})
}

func (r *UserRepository) SetDeletedAt(ctx context.Context, id string, deletedAt, updatedAt int64) error {
	return r.set(ctx, id, bson.M{"deletedAt": deletedAt, "updatedAt": updatedAt})
}

func (r *UserRepository) set(ctx context.Context, id string, fields bson.M) error {
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return internal.NewInternalError("failed to update user", err)
	}
	if res.MatchedCount == 0 {
		return internal.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) List(ctx context.Context, q user.ListQuery) ([]*user.User, int64, error) {
	filter := bson.M{"deletedAt": 0}
	if q.FullName != "" {
		filter["fullName"] = primitive.Regex{Pattern: regexp.QuoteMeta(q.FullName), Options: "i"}
	}
	if !q.DateRange.Empty() {
		created := bson.M{}
		if q.DateRange.From != nil {
			created["$gte"] = *q.DateRange.From
		}
		if q.DateRange.To != nil {
			created["$lte"] = *q.DateRange.To
		}
		filter["createdAt"] = created
	}
	if q.NodeIDs != nil {
		filter["nodeId"] = bson.M{"$in": q.NodeIDs}
	}
	if q.Role != "" {
		filter["role"] = string(q.Role)
	}
	if q.ExcludeID != "" {
		filter["_id"] = bson.M{"$ne": q.ExcludeID}
	}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, internal.NewInternalError("failed to count users", err)
	}

	sort := bson.D{{Key: "createdAt", Value: -1}}
	if q.SortType != user.SortByCreatedAt {
		sort = bson.D{{Key: q.SortType, Value: 1}}
	}
	opts := options.Find().
		SetSort(sort).
		SetSkip(int64(q.Offset())).
		SetLimit(int64(q.Size)).
		SetProjection(bson.M{"password": 0})

	cur, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, internal.NewInternalError("failed to list users", err)
	}
	var recs []userDatamodel.User
	if err := cur.All(ctx, &recs); err != nil {
		return nil, 0, internal.NewInternalError("failed to decode users", err)
	}

	users := make([]*user.User, 0, len(recs))
	for i := range recs {
		users = append(users, user.FromDataModel(&recs[i]))
	}
	return users, total, nil
}

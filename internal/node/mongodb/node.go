package mongodb

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/frahmantamala/orgtree/internal"
	nodeDatamodel "github.com/frahmantamala/orgtree/internal/core/datamodel/node"
	"github.com/frahmantamala/orgtree/internal/node"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	Collection = "nodes"
	// singleRootIndex admits at most one document with a null parent.
	singleRootIndex = "single_root"
)

// NodeRepository implements node.Repository on a mongo collection. Ids are
// ObjectID hex strings; child set mutations use $addToSet and $pull.
type NodeRepository struct {
	collection *mongo.Collection
}

func NewNodeRepository(db *mongo.Database) *NodeRepository {
	return &NodeRepository{collection: db.Collection(Collection)}
}

// EnsureIndexes creates the unique name index, the single root index and the
// lookup indexes the listings rely on.
func (r *NodeRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
		{
			Keys: bson.D{{Key: "parent", Value: 1}},
			Options: options.Index().
				SetName(singleRootIndex).
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"parent": bson.M{"$type": "null"}}),
		},
		{Keys: bson.D{{Key: "deletedAt", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "ancestors", Value: 1}}},
	})
	return err
}

func (r *NodeRepository) Count(ctx context.Context) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, internal.NewInternalError("failed to count nodes", err)
	}
	return count, nil
}

func (r *NodeRepository) Create(ctx context.Context, n *node.Node) error {
	if n.ID == "" {
		n.ID = primitive.NewObjectID().Hex()
	}
	_, err := r.collection.InsertOne(ctx, node.ToDataModel(n))
	if mongo.IsDuplicateKeyError(err) {
		if n.IsRoot() && strings.Contains(err.Error(), singleRootIndex) {
			// somebody installed the root first
			return internal.ErrParentRequired
		}
		return internal.ErrNodeNameTaken
	}
	if err != nil {
		return internal.NewInternalError("failed to create node", err)
	}
	return nil
}

func (r *NodeRepository) GetByID(ctx context.Context, id string) (*node.Node, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *NodeRepository) GetByName(ctx context.Context, name string) (*node.Node, error) {
	return r.findOne(ctx, bson.M{"name": name, "deletedAt": 0})
}

func (r *NodeRepository) findOne(ctx context.Context, filter bson.M) (*node.Node, error) {
	var rec nodeDatamodel.Node
	err := r.collection.FindOne(ctx, filter).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, internal.ErrNodeNotFound
	}
	if err != nil {
		return nil, internal.NewInternalError("failed to get node", err)
	}
	return node.FromDataModel(&rec), nil
}

// Update sets the patchable fields of a live node in one atomic update.
// Children are only part of it when replaceChildren is set.
func (r *NodeRepository) Update(ctx context.Context, n *node.Node, replaceChildren bool) error {
	fields := bson.M{
		"type":      n.Type,
		"location":  n.Location,
		"managedBy": n.ManagedBy,
		"updatedAt": n.UpdatedAt,
	}
	if replaceChildren {
		fields["children"] = n.Children
	}
	return r.updateOne(ctx, bson.M{"_id": n.ID, "deletedAt": 0}, bson.M{"$set": fields})
}

// Archive only matches a live document whose children array is empty.
func (r *NodeRepository) Archive(ctx context.Context, id string, deletedAt int64) error {
	filter := bson.M{"_id": id, "deletedAt": 0, "children": bson.M{"$size": 0}}
	res, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"deletedAt": deletedAt, "updatedAt": deletedAt}})
	if err != nil {
		return internal.NewInternalError("failed to archive node", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current.Archived() {
		return internal.ErrNodeNotFound
	}
	return internal.ErrNodeHasChildren.WithDetails(map[string]int{"children": len(current.Children)})
}

func (r *NodeRepository) SetDeletedAt(ctx context.Context, id string, deletedAt, updatedAt int64) error {
	return r.updateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"deletedAt": deletedAt, "updatedAt": updatedAt}})
}

func (r *NodeRepository) Remove(ctx context.Context, id string) error {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return internal.NewInternalError("failed to remove node", err)
	}
	return nil
}

// AddChild refuses an archived parent with internal.ErrNodeNotFound.
func (r *NodeRepository) AddChild(ctx context.Context, parentID, childID string, updatedAt int64) error {
	return r.updateOne(ctx, bson.M{"_id": parentID, "deletedAt": 0}, bson.M{
		"$addToSet": bson.M{"children": childID},
		"$set":      bson.M{"updatedAt": updatedAt},
	})
}

func (r *NodeRepository) RemoveChild(ctx context.Context, parentID, childID string, updatedAt int64) error {
	return r.updateOne(ctx, bson.M{"_id": parentID}, bson.M{
		"$pull": bson.M{"children": childID},
		"$set":  bson.M{"updatedAt": updatedAt},
	})
}

func (r *NodeRepository) updateOne(ctx context.Context, filter, update bson.M) error {
	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return internal.NewInternalError("failed to update node", err)
	}
	if res.MatchedCount == 0 {
		return internal.ErrNodeNotFound
	}
	return nil
}

func (r *NodeRepository) List(ctx context.Context, q node.ListQuery) ([]*node.Node, int64, error) {
	filter := bson.M{"deletedAt": 0}
	if q.Name != "" {
		filter["name"] = primitive.Regex{Pattern: regexp.QuoteMeta(q.Name), Options: "i"}
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
	for key, value := range q.Filters {
		filter[key] = value
	}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, internal.NewInternalError("failed to count nodes", err)
	}

	sort := bson.D{{Key: "createdAt", Value: -1}}
	if q.SortType != node.SortByCreatedAt {
		sort = bson.D{{Key: q.SortType, Value: 1}}
	}
	opts := options.Find().
		SetSort(sort).
		SetSkip(int64(q.Offset())).
		SetLimit(int64(q.Size))

	cur, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, internal.NewInternalError("failed to list nodes", err)
	}
	var recs []nodeDatamodel.Node
	if err := cur.All(ctx, &recs); err != nil {
		return nil, 0, internal.NewInternalError("failed to decode nodes", err)
	}

	nodes := make([]*node.Node, 0, len(recs))
	for i := range recs {
		nodes = append(nodes, node.FromDataModel(&recs[i]))
	}
	return nodes, total, nil
}

func (r *NodeRepository) DescendantIDs(ctx context.Context, id string) ([]string, error) {
	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cur, err := r.collection.Find(ctx, bson.M{"deletedAt": 0, "ancestors": id}, opts)
	if err != nil {
		return nil, internal.NewInternalError("failed to list descendants", err)
	}

	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, internal.NewInternalError("failed to decode descendants", err)
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

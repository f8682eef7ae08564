package db

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ukydev/fleet-backoffice/internal/apperr"
)

const (
	defaultLimit = 20
	maxLimit     = 200
)

// ListQuery is a filtered, paginated listing request.
type ListQuery struct {
	Filter bson.M
	Sort   bson.D
	Page   int
	Limit  int
}

// Normalize clamps paging values into range.
func (q *ListQuery) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	if q.Filter == nil {
		q.Filter = bson.M{}
	}
	if len(q.Sort) == 0 {
		q.Sort = bson.D{{Key: "created_at", Value: -1}}
	}
}

// repository holds the CRUD shared by every collection of documents of type T.
type repository[T any] struct {
	coll     *mongo.Collection
	notFound *apperr.Error
}

func (r repository[T]) insert(ctx context.Context, doc *T) (primitive.ObjectID, error) {
	if r.coll == nil {
		return primitive.NilObjectID, fmt.Errorf("mongo collection is nil")
	}
	res, err := r.coll.InsertOne(ctx, doc)
	if err != nil {
		return primitive.NilObjectID, err
	}
	id, _ := res.InsertedID.(primitive.ObjectID)
	return id, nil
}

func (r repository[T]) findOne(ctx context.Context, filter interface{}) (*T, error) {
	var doc T
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, notFound(err, r.notFound)
	}
	return &doc, nil
}

func (r repository[T]) findByID(ctx context.Context, id string) (*T, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r repository[T]) findAll(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]T, error) {
	cursor, err := r.coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := []T{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r repository[T]) list(ctx context.Context, q ListQuery) ([]T, int64, error) {
	q.Normalize()
	total, err := r.coll.CountDocuments(ctx, q.Filter)
	if err != nil {
		return nil, 0, err
	}
	opts := options.Find().
		SetSort(q.Sort).
		SetSkip(int64((q.Page - 1) * q.Limit)).
		SetLimit(int64(q.Limit))
	items, err := r.findAll(ctx, q.Filter, opts)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r repository[T]) replace(ctx context.Context, id primitive.ObjectID, doc *T) error {
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": id}, doc)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return r.notFound
	}
	return nil
}

func (r repository[T]) update(ctx context.Context, id primitive.ObjectID, set bson.M) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return r.notFound
	}
	return nil
}

func (r repository[T]) delete(ctx context.Context, id string) error {
	oid, err := ParseID(id)
	if err != nil {
		return err
	}
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return r.notFound
	}
	return nil
}

package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrDomainNotFound is returned when no record matches the lookup.
	ErrDomainNotFound = errors.New("domain not found")
	// ErrDuplicateDomain is returned when inserting a name that is already stored.
	ErrDuplicateDomain = errors.New("domain already exists")
)

type domainCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// DomainRepository persists canonical domain records keyed by name.
type DomainRepository struct {
	collection domainCollection
}

// NewDomainRepository constructs a DomainRepository.
func NewDomainRepository(collection domainCollection) *DomainRepository {
	return &DomainRepository{collection: collection}
}

// Insert stores a new record and returns its id. A name already present
// yields an error wrapping ErrDuplicateDomain.
func (r *DomainRepository) Insert(ctx context.Context, d Domain) (primitive.ObjectID, error) {
	if err := r.validate(ctx); err != nil {
		return primitive.NilObjectID, err
	}
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return primitive.NilObjectID, errors.New("domain name is required")
	}
	if d.ID.IsZero() {
		d.ID = primitive.NewObjectID()
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	if d.AddedAt.IsZero() {
		d.AddedAt = now
	}
	if d.UpdatedDate.IsZero() {
		d.UpdatedDate = now
	}

	result, err := r.collection.InsertOne(ctx, d)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, fmt.Errorf("insert domain %s: %w", d.Name, ErrDuplicateDomain)
		}
		return primitive.NilObjectID, fmt.Errorf("insert domain: %w", err)
	}

	if result != nil {
		if id, ok := result.InsertedID.(primitive.ObjectID); ok {
			return id, nil
		}
	}

	return d.ID, nil
}

// FindByName fetches the record for a canonical domain name.
func (r *DomainRepository) FindByName(ctx context.Context, name string) (Domain, error) {
	if err := r.validate(ctx); err != nil {
		return Domain{}, err
	}
	if strings.TrimSpace(name) == "" {
		return Domain{}, errors.New("domain name is required")
	}

	return r.findOne(ctx, bson.M{"name": strings.TrimSpace(name)})
}

// FindByID fetches a record by its id.
func (r *DomainRepository) FindByID(ctx context.Context, id primitive.ObjectID) (Domain, error) {
	if err := r.validate(ctx); err != nil {
		return Domain{}, err
	}
	if id.IsZero() {
		return Domain{}, errors.New("domain id is required")
	}

	return r.findOne(ctx, bson.M{"_id": id})
}

// FindByIDs fetches the records for ids, restricted to fields when any are named.
// Missing ids are skipped.
func (r *DomainRepository) FindByIDs(ctx context.Context, ids []primitive.ObjectID, fields ...string) ([]Domain, error) {
	if err := r.validate(ctx); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	opts := options.Find()
	if len(fields) > 0 {
		projection := bson.M{}
		for _, field := range fields {
			projection[field] = 1
		}
		opts.SetProjection(projection)
	}

	return r.find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
}

// FindExpiringBefore returns records whose expiry_date is at or before
// threshold, ordered by expiry (descending when desc is set). A limit of zero
// means no limit. Records without an expiry date never match.
func (r *DomainRepository) FindExpiringBefore(ctx context.Context, threshold time.Time, limit int64, desc bool) ([]Domain, error) {
	if err := r.validate(ctx); err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, errors.New("limit must not be negative")
	}

	order := 1
	if desc {
		order = -1
	}

	opts := options.Find().SetSort(bson.D{{Key: "expiry_date", Value: order}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	return r.find(ctx, bson.M{"expiry_date": bson.M{"$lte": threshold.UTC()}}, opts)
}

// UpsertPartial merges the present fields of fragment into the record for
// name, creating it when missing. Absent fields are left untouched.
func (r *DomainRepository) UpsertPartial(ctx context.Context, name string, fragment Fragment) (bool, error) {
	if err := r.validate(ctx); err != nil {
		return false, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return false, errors.New("domain name is required")
	}
	if fragment.UpdatedDate.IsZero() {
		fragment.UpdatedDate = time.Now().UTC().Truncate(time.Millisecond)
	}

	update := bson.M{
		"$set": fragment.SetFields(),
		"$setOnInsert": bson.M{
			"added_at": fragment.UpdatedDate,
		},
	}

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"name": name},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, fmt.Errorf("update domain %s: %w", name, err)
	}

	return result != nil && result.UpsertedCount > 0, nil
}

func (r *DomainRepository) findOne(ctx context.Context, filter bson.M) (Domain, error) {
	result := r.collection.FindOne(ctx, filter)
	if result == nil {
		return Domain{}, errors.New("find domain returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Domain{}, ErrDomainNotFound
		}
		return Domain{}, fmt.Errorf("find domain: %w", err)
	}

	var d Domain
	if err := result.Decode(&d); err != nil {
		return Domain{}, fmt.Errorf("decode domain: %w", err)
	}

	return d, nil
}

func (r *DomainRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]Domain, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find domains: %w", err)
	}

	var domains []Domain
	if err := cursor.All(ctx, &domains); err != nil {
		return nil, fmt.Errorf("decode domains: %w", err)
	}

	return domains, nil
}

func (r *DomainRepository) validate(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return errors.New("domain repository is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	return nil
}

// Package mongo implements store.Store on MongoDB through Grove.
//
// Uploads and transfers run inside a multi-document transaction, so the
// server must be a replica set or a sharded cluster.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/capacity"
	"github.com/xraph/capacity/quota"
	"github.com/xraph/capacity/resource"
	capstore "github.com/xraph/capacity/store"
	"github.com/xraph/capacity/usage"
)

// Collection name constants.
const (
	colResources = "capacity_resources"
	colQuotas    = "capacity_quotas"
	colSamples   = "capacity_usage_samples"
)

// compile-time interface check
var _ capstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all capacity collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("capacity/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Resource Store ====================

func (s *Store) ListResources(ctx context.Context) ([]*resource.Resource, error) {
	var models []resourceModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("capacity/mongo: list resources: %w", err)
	}

	result := make([]*resource.Resource, len(models))
	for i := range models {
		result[i] = fromResourceModel(&models[i])
	}
	return result, nil
}

func (s *Store) GetResource(ctx context.Context, resourceID string) (*resource.Resource, error) {
	var m resourceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": resourceID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, capacity.ErrResourceNotFound
		}
		return nil, fmt.Errorf("capacity/mongo: get resource: %w", err)
	}
	return fromResourceModel(&m), nil
}

func (s *Store) PutResource(ctx context.Context, r *resource.Resource) error {
	m := toResourceModel(r)
	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		SetUpdate(bson.M{
			"$set": bson.M{
				"name":        m.Name,
				"description": m.Description,
				"unit":        m.Unit,
				"updated_at":  m.UpdatedAt,
			},
			"$setOnInsert": bson.M{"created_at": m.CreatedAt},
		}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("capacity/mongo: put resource: %w", err)
	}
	return nil
}

// ==================== Quota Store ====================

func (s *Store) ListQuotas(ctx context.Context, opts quota.ListOpts) ([]*quota.Quota, error) {
	var models []quotaModel

	filter := bson.M{}
	if len(opts.ProductIDs) > 0 {
		filter["product_id"] = bson.M{"$in": opts.ProductIDs}
	}
	if opts.ResourceID != "" {
		filter["resource_id"] = opts.ResourceID
	}

	err := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "product_id", Value: 1}, {Key: "resource_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("capacity/mongo: list quotas: %w", err)
	}

	result := make([]*quota.Quota, len(models))
	for i := range models {
		q, err := fromQuotaModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = q
	}
	return result, nil
}

// UploadQuotas writes the batch in one transaction. A record whose limit
// changes gets its revision bumped; an unchanged one is left alone; a new
// one is inserted as given.
func (s *Store) UploadQuotas(ctx context.Context, quotas []*quota.Quota) error {
	if len(quotas) == 0 {
		return nil
	}
	coll := s.mdb.Collection(colQuotas)

	err := s.withTransaction(ctx, func(ctx context.Context) error {
		for _, q := range quotas {
			m := toQuotaModel(q)
			key := bson.M{"product_id": m.ProductID, "resource_id": m.ResourceID}

			changed := bson.M{"product_id": m.ProductID, "resource_id": m.ResourceID, "quota_limit": bson.M{"$ne": m.Limit}}
			res, err := coll.UpdateOne(ctx, changed, bson.M{
				"$set": bson.M{"quota_limit": m.Limit, "updated_at": m.UpdatedAt},
				"$inc": bson.M{"revision": 1},
			})
			if err != nil {
				return err
			}
			if res.MatchedCount > 0 {
				continue
			}

			_, err = coll.UpdateOne(ctx, key, bson.M{"$setOnInsert": quotaDoc(m)}, options.UpdateOne().SetUpsert(true))
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("capacity/mongo: upload quotas: %w", err)
	}
	return nil
}

// errMoveMissed aborts a transfer transaction whose guards did not match.
var errMoveMissed = errors.New("capacity/mongo: move guard missed")

func (s *Store) ApplyMove(ctx context.Context, m *quota.Move) error {
	coll := s.mdb.Collection(colQuotas)
	at := m.At.UTC()

	debit := func(ctx context.Context) error {
		res, err := coll.UpdateOne(ctx,
			bson.M{
				"product_id":  m.FromProductID,
				"resource_id": m.ResourceID,
				"revision":    m.FromRevision,
				"quota_limit": bson.M{"$gte": m.Amount},
			},
			bson.M{
				"$inc": bson.M{"quota_limit": -m.Amount, "revision": 1},
				"$set": bson.M{"updated_at": at},
			})
		if err != nil {
			return err
		}
		if res.MatchedCount != 1 {
			return errMoveMissed
		}
		return nil
	}

	credit := func(ctx context.Context) error {
		if !m.ToRevision.Present {
			_, err := coll.InsertOne(ctx, quotaDoc(&quotaModel{
				ID:         m.NewID.String(),
				ProductID:  m.ToProductID,
				ResourceID: m.ResourceID,
				Limit:      m.Amount,
				Revision:   1,
				CreatedAt:  at,
				UpdatedAt:  at,
			}))
			if mongo.IsDuplicateKeyError(err) {
				return errMoveMissed
			}
			return err
		}
		res, err := coll.UpdateOne(ctx,
			bson.M{
				"product_id":  m.ToProductID,
				"resource_id": m.ResourceID,
				"revision":    m.ToRevision.Value,
				"quota_limit": bson.M{"$lte": math.MaxInt64 - m.Amount},
			},
			bson.M{
				"$inc": bson.M{"quota_limit": m.Amount, "revision": 1},
				"$set": bson.M{"updated_at": at},
			})
		if err != nil {
			return err
		}
		if res.MatchedCount != 1 {
			return errMoveMissed
		}
		return nil
	}

	steps := []func(context.Context) error{debit, credit}
	if first, _ := m.ProductOrder(); first == m.ToProductID {
		steps[0], steps[1] = credit, debit
	}

	err := s.withTransaction(ctx, func(ctx context.Context) error {
		for _, step := range steps {
			if err := step(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, errMoveMissed) {
		return capacity.ErrRevisionMismatch
	}
	if err != nil {
		return fmt.Errorf("capacity/mongo: apply move: %w", err)
	}
	return nil
}

func (s *Store) SetUsage(ctx context.Context, productID, resourceID string, used int64) error {
	res, err := s.mdb.NewUpdate((*quotaModel)(nil)).
		Filter(bson.M{"product_id": productID, "resource_id": resourceID}).
		Set("quota_usage", used).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("capacity/mongo: set usage: %w", err)
	}
	if res.MatchedCount() == 0 {
		return capacity.ErrQuotaNotFound
	}
	return nil
}

// ==================== Usage Store ====================

func (s *Store) IngestSamples(ctx context.Context, samples []*usage.Sample) error {
	for _, smp := range samples {
		m := toSampleModel(smp)
		_, err := s.mdb.NewInsert(m).Exec(ctx)
		if err != nil {
			// Skip duplicates for idempotency
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
			return fmt.Errorf("capacity/mongo: ingest sample: %w", err)
		}
	}
	return nil
}

func (s *Store) QuerySamples(ctx context.Context, productID string, opts usage.QueryOpts) ([]*usage.Sample, error) {
	var models []sampleModel

	filter := bson.M{"product_id": productID}
	if opts.ResourceID != "" {
		filter["resource_id"] = opts.ResourceID
	}
	window := bson.M{}
	if !opts.Start.IsZero() {
		window["$gte"] = opts.Start.UTC()
	}
	if !opts.End.IsZero() {
		window["$lte"] = opts.End.UTC()
	}
	if len(window) > 0 {
		filter["sampled_at"] = window
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "sampled_at", Value: 1}, {Key: "resource_id", Value: 1}, {Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("capacity/mongo: query samples: %w", err)
	}

	result := make([]*usage.Sample, len(models))
	for i := range models {
		smp, err := fromSampleModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = smp
	}
	return result, nil
}

// ==================== Helpers ====================

// withTransaction runs fn in a multi-document transaction. The driver
// retries fn on transient transaction errors such as write conflicts.
func (s *Store) withTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	client := s.mdb.Collection(colQuotas).Database().Client()
	sess, err := client.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// quotaDoc is the document form of a quota row for the native collection calls.
func quotaDoc(m *quotaModel) bson.M {
	return bson.M{
		"_id":         m.ID,
		"product_id":  m.ProductID,
		"resource_id": m.ResourceID,
		"quota_limit": m.Limit,
		"quota_usage": m.Usage,
		"revision":    m.Revision,
		"created_at":  m.CreatedAt,
		"updated_at":  m.UpdatedAt,
	}
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all capacity collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colResources: {},
		colQuotas: {
			{
				Keys:    bson.D{{Key: "product_id", Value: 1}, {Key: "resource_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "resource_id", Value: 1}}},
		},
		colSamples: {
			{Keys: bson.D{{Key: "product_id", Value: 1}, {Key: "sampled_at", Value: 1}, {Key: "resource_id", Value: 1}}},
		},
	}
}

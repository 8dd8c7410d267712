// Package sqlite implements store.Store on SQLite through Grove.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/capacity"
	"github.com/xraph/capacity/quota"
	"github.com/xraph/capacity/resource"
	capstore "github.com/xraph/capacity/store"
	"github.com/xraph/capacity/usage"
)

// compile-time interface check
var _ capstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("capacity/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("capacity/sqlite: migration failed: %w", err)
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
	if err := s.sdb.NewSelect(&models).OrderExpr("id ASC").Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*resource.Resource, len(models))
	for i := range models {
		result[i] = fromResourceModel(&models[i])
	}
	return result, nil
}

func (s *Store) GetResource(ctx context.Context, resourceID string) (*resource.Resource, error) {
	m := new(resourceModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", resourceID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, capacity.ErrResourceNotFound
		}
		return nil, err
	}
	return fromResourceModel(m), nil
}

func (s *Store) PutResource(ctx context.Context, r *resource.Resource) error {
	_, err := s.sdb.NewInsert(toResourceModel(r)).
		OnConflict("(id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("description = EXCLUDED.description").
		Set("unit = EXCLUDED.unit").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// ==================== Quota Store ====================

func (s *Store) ListQuotas(ctx context.Context, opts quota.ListOpts) ([]*quota.Quota, error) {
	var models []quotaModel
	q := s.sdb.NewSelect(&models)

	if len(opts.ProductIDs) > 0 {
		args := make([]any, len(opts.ProductIDs))
		for i, p := range opts.ProductIDs {
			args[i] = p
		}
		q = q.Where("product_id IN ("+placeholders(len(args))+")", args...)
	}
	if opts.ResourceID != "" {
		q = q.Where("resource_id = ?", opts.ResourceID)
	}
	q = q.OrderExpr("product_id ASC, resource_id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*quota.Quota, len(models))
	for i := range models {
		qt, err := fromQuotaModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = qt
	}
	return result, nil
}

func (s *Store) UploadQuotas(ctx context.Context, quotas []*quota.Quota) error {
	if len(quotas) == 0 {
		return nil
	}
	models := make([]quotaModel, len(quotas))
	for i, q := range quotas {
		models[i] = *toQuotaModel(q)
	}

	_, err := s.sdb.NewInsert(&models).
		OnConflict("(product_id, resource_id) DO UPDATE").
		Set("quota_limit = excluded.quota_limit").
		Set("revision = CASE WHEN capacity_quotas.quota_limit <> excluded.quota_limit THEN capacity_quotas.revision + 1 ELSE capacity_quotas.revision END").
		Set("updated_at = CASE WHEN capacity_quotas.quota_limit <> excluded.quota_limit THEN excluded.updated_at ELSE capacity_quotas.updated_at END").
		Exec(ctx)
	return err
}

// moveSQL upserts both rows of a transfer in one statement. The candidate
// rows carry the signed delta in quota_limit: an existing row absorbs it on
// conflict, a missing destination is inserted with it at revision 1. The
// WHERE guard is evaluated once, before any row is written, so either both
// rows change or neither does. %s is the destination guard.
const moveSQL = `
INSERT INTO capacity_quotas (id, product_id, resource_id, quota_limit, quota_usage, revision, created_at, updated_at)
SELECT v.id, v.product_id, ?, v.delta, 0, 1, ?, ?
FROM (SELECT ? AS id, ? AS product_id, ? AS delta UNION ALL SELECT ?, ?, ?) AS v
WHERE (SELECT COUNT(*) FROM capacity_quotas
       WHERE resource_id = ? AND product_id = ? AND revision = ? AND quota_limit >= ?) = 1
  AND %s
ON CONFLICT (product_id, resource_id) DO UPDATE SET
    quota_limit = capacity_quotas.quota_limit + excluded.quota_limit,
    revision    = capacity_quotas.revision + 1,
    updated_at  = excluded.updated_at
RETURNING revision`

const (
	destinationAtRevision = `(SELECT COUNT(*) FROM capacity_quotas WHERE resource_id = ? AND product_id = ? AND revision = ? AND quota_limit <= ?) = 1`
	destinationAbsent     = `(SELECT COUNT(*) FROM capacity_quotas WHERE resource_id = ? AND product_id = ?) = 0`
)

func (s *Store) ApplyMove(ctx context.Context, m *quota.Move) error {
	at := m.At.UTC()
	rowID := m.NewID.String()

	// Candidate rows in lock order; the source's ID is never inserted.
	type candidate struct {
		id        string
		productID string
		delta     int64
	}
	src := candidate{id: rowID + "-src", productID: m.FromProductID, delta: -m.Amount}
	dst := candidate{id: rowID, productID: m.ToProductID, delta: m.Amount}
	first, second := src, dst
	if m.ToProductID < m.FromProductID {
		first, second = dst, src
	}

	args := []any{
		m.ResourceID, at, at,
		first.id, first.productID, first.delta,
		second.id, second.productID, second.delta,
		m.ResourceID, m.FromProductID, m.FromRevision, m.Amount,
	}

	guard := destinationAbsent
	args = append(args, m.ResourceID, m.ToProductID)
	if m.ToRevision.Present {
		guard = destinationAtRevision
		args = append(args, m.ToRevision.Value, math.MaxInt64-m.Amount)
	}

	var revision int64
	err := s.sdb.NewRaw(fmt.Sprintf(moveSQL, guard), args...).Scan(ctx, &revision)
	if err != nil {
		if isNoRows(err) {
			return capacity.ErrRevisionMismatch
		}
		return fmt.Errorf("capacity/sqlite: apply move: %w", err)
	}
	return nil
}

func (s *Store) SetUsage(ctx context.Context, productID, resourceID string, used int64) error {
	res, err := s.sdb.NewUpdate((*quotaModel)(nil)).
		Set("quota_usage = ?", used).
		Where("product_id = ?", productID).
		Where("resource_id = ?", resourceID).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return capacity.ErrQuotaNotFound
	}
	return nil
}

// ==================== Usage Store ====================

func (s *Store) IngestSamples(ctx context.Context, samples []*usage.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	models := make([]sampleModel, len(samples))
	for i, smp := range samples {
		models[i] = *toSampleModel(smp)
	}
	_, err := s.sdb.NewInsert(&models).
		OnConflict("(id) DO NOTHING").
		Exec(ctx)
	return err
}

func (s *Store) QuerySamples(ctx context.Context, productID string, opts usage.QueryOpts) ([]*usage.Sample, error) {
	var models []sampleModel
	q := s.sdb.NewSelect(&models).
		Where("product_id = ?", productID)

	if opts.ResourceID != "" {
		q = q.Where("resource_id = ?", opts.ResourceID)
	}
	if !opts.Start.IsZero() {
		q = q.Where("sampled_at >= ?", opts.Start.UTC())
	}
	if !opts.End.IsZero() {
		q = q.Where("sampled_at <= ?", opts.End.UTC())
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("sampled_at ASC, resource_id ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

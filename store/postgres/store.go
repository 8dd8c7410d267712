// Package postgres implements store.Store on PostgreSQL through Grove.
//
// Transfers are applied by a single statement that locks both quota rows in
// product order (SELECT ... FOR UPDATE inside a CTE) and updates them only if
// both are still at the expected revisions.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/capacity"
	"github.com/xraph/capacity/quota"
	"github.com/xraph/capacity/resource"
	capstore "github.com/xraph/capacity/store"
	"github.com/xraph/capacity/usage"
)

// compile-time interface check
var _ capstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("capacity/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("capacity/postgres: migration failed: %w", err)
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
	if err := s.pg.NewSelect(&models).OrderExpr("id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("capacity/postgres: list resources: %w", err)
	}

	result := make([]*resource.Resource, len(models))
	for i := range models {
		result[i] = fromResourceModel(&models[i])
	}
	return result, nil
}

func (s *Store) GetResource(ctx context.Context, resourceID string) (*resource.Resource, error) {
	m := new(resourceModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", resourceID).
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
	_, err := s.pg.NewInsert(toResourceModel(r)).
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
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if len(opts.ProductIDs) > 0 {
		placeholders := make([]string, len(opts.ProductIDs))
		args := make([]any, len(opts.ProductIDs))
		for i, p := range opts.ProductIDs {
			argIdx++
			placeholders[i] = fmt.Sprintf("$%d", argIdx)
			args[i] = p
		}
		q = q.Where("product_id IN ("+strings.Join(placeholders, ", ")+")", args...)
	}
	if opts.ResourceID != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("resource_id = $%d", argIdx), opts.ResourceID)
	}
	q = q.OrderExpr("product_id ASC, resource_id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("capacity/postgres: list quotas: %w", err)
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

// UploadQuotas upserts the batch in one multi-row statement. An existing
// row keeps its ID and usage; its revision moves only when the limit does.
func (s *Store) UploadQuotas(ctx context.Context, quotas []*quota.Quota) error {
	if len(quotas) == 0 {
		return nil
	}
	models := make([]quotaModel, len(quotas))
	for i, q := range quotas {
		models[i] = *toQuotaModel(q)
	}

	_, err := s.pg.NewInsert(&models).
		OnConflict("(product_id, resource_id) DO UPDATE").
		Set("quota_limit = EXCLUDED.quota_limit").
		Set("revision = CASE WHEN capacity_quotas.quota_limit <> EXCLUDED.quota_limit THEN capacity_quotas.revision + 1 ELSE capacity_quotas.revision END").
		Set("updated_at = CASE WHEN capacity_quotas.quota_limit <> EXCLUDED.quota_limit THEN EXCLUDED.updated_at ELSE capacity_quotas.updated_at END").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("capacity/postgres: upload quotas: %w", err)
	}
	return nil
}

// moveExistingSQL moves limit between two existing rows. Both rows are
// locked in product order; the update applies to both or neither, and not
// at all when the destination limit would leave the bigint range.
const moveExistingSQL = `
WITH locked AS (
    SELECT product_id, quota_limit, revision FROM capacity_quotas
    WHERE resource_id = $1::text AND product_id IN ($2::text, $3::text)
    ORDER BY product_id
    FOR UPDATE
), upd AS (
    UPDATE capacity_quotas q SET
        quota_limit = q.quota_limit + CASE WHEN q.product_id = $2::text THEN -$4::bigint ELSE $4::bigint END,
        revision    = q.revision + 1,
        updated_at  = $7::timestamptz
    WHERE q.resource_id = $1::text AND q.product_id IN ($2::text, $3::text)
      AND (SELECT COUNT(*) FROM locked l
           WHERE (l.product_id = $2::text AND l.revision = $5::bigint AND l.quota_limit >= $4::bigint)
              OR (l.product_id = $3::text AND l.revision = $6::bigint
                  AND l.quota_limit <= 9223372036854775807 - $4::bigint)) = 2
    RETURNING q.id
)
SELECT COUNT(*) FROM upd`

// moveToNewSQL moves limit from an existing row into a row it creates. The
// insert loses to a concurrently created destination (DO NOTHING), and the
// source is only updated when the insert happened.
const moveToNewSQL = `
WITH locked AS (
    SELECT id FROM capacity_quotas
    WHERE resource_id = $1::text AND product_id = $2::text
      AND revision = $5::bigint AND quota_limit >= $4::bigint
    FOR UPDATE
), ins AS (
    INSERT INTO capacity_quotas (id, product_id, resource_id, quota_limit, quota_usage, revision, created_at, updated_at)
    SELECT $6::text, $3::text, $1::text, $4::bigint, 0, 1, $7::timestamptz, $7::timestamptz FROM locked
    ON CONFLICT (product_id, resource_id) DO NOTHING
    RETURNING id
), upd AS (
    UPDATE capacity_quotas q SET
        quota_limit = q.quota_limit - $4::bigint,
        revision    = q.revision + 1,
        updated_at  = $7::timestamptz
    WHERE q.id = (SELECT id FROM locked) AND EXISTS (SELECT 1 FROM ins)
    RETURNING q.id
)
SELECT (SELECT COUNT(*) FROM ins) + (SELECT COUNT(*) FROM upd)`

func (s *Store) ApplyMove(ctx context.Context, m *quota.Move) error {
	var applied int64

	var err error
	if m.ToRevision.Present {
		err = s.pg.NewRaw(moveExistingSQL,
			m.ResourceID, m.FromProductID, m.ToProductID, m.Amount,
			m.FromRevision, m.ToRevision.Value, m.At.UTC(),
		).Scan(ctx, &applied)
	} else {
		err = s.pg.NewRaw(moveToNewSQL,
			m.ResourceID, m.FromProductID, m.ToProductID, m.Amount,
			m.FromRevision, m.NewID.String(), m.At.UTC(),
		).Scan(ctx, &applied)
	}
	if err != nil {
		return fmt.Errorf("capacity/postgres: apply move: %w", err)
	}
	if applied != 2 {
		return capacity.ErrRevisionMismatch
	}
	return nil
}

func (s *Store) SetUsage(ctx context.Context, productID, resourceID string, used int64) error {
	res, err := s.pg.NewUpdate((*quotaModel)(nil)).
		Set("quota_usage = $1", used).
		Where("product_id = $2", productID).
		Where("resource_id = $3", resourceID).
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
	_, err := s.pg.NewInsert(&models).
		OnConflict("(id) DO NOTHING").
		Exec(ctx)
	return err
}

func (s *Store) QuerySamples(ctx context.Context, productID string, opts usage.QueryOpts) ([]*usage.Sample, error) {
	var models []sampleModel
	q := s.pg.NewSelect(&models).
		Where("product_id = $1", productID)

	argIdx := 1
	if opts.ResourceID != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("resource_id = $%d", argIdx), opts.ResourceID)
	}
	if !opts.Start.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("sampled_at >= $%d", argIdx), opts.Start.UTC())
	}
	if !opts.End.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("sampled_at <= $%d", argIdx), opts.End.UTC())
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

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

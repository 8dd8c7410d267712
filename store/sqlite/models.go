package sqlite

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/capacity/id"
	"github.com/xraph/capacity/quota"
	"github.com/xraph/capacity/resource"
	"github.com/xraph/capacity/types"
	"github.com/xraph/capacity/usage"
)

// ==================== Resource models ====================

type resourceModel struct {
	grove.BaseModel `grove:"table:capacity_resources"`

	ID          string    `grove:"id,pk"`
	Name        string    `grove:"name"`
	Description string    `grove:"description"`
	Unit        string    `grove:"unit"`
	CreatedAt   time.Time `grove:"created_at"`
	UpdatedAt   time.Time `grove:"updated_at"`
}

func toResourceModel(r *resource.Resource) *resourceModel {
	return &resourceModel{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Unit:        string(r.Unit),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func fromResourceModel(m *resourceModel) *resource.Resource {
	return &resource.Resource{
		Entity:      types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Unit:        resource.Unit(m.Unit),
	}
}

// ==================== Quota models ====================

type quotaModel struct {
	grove.BaseModel `grove:"table:capacity_quotas"`

	ID         string    `grove:"id,pk"`
	ProductID  string    `grove:"product_id"`
	ResourceID string    `grove:"resource_id"`
	Limit      int64     `grove:"quota_limit"`
	Usage      int64     `grove:"quota_usage"`
	Revision   int64     `grove:"revision"`
	CreatedAt  time.Time `grove:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at"`
}

func toQuotaModel(q *quota.Quota) *quotaModel {
	return &quotaModel{
		ID:         q.ID.String(),
		ProductID:  q.ProductID,
		ResourceID: q.ResourceID,
		Limit:      q.Limit,
		Usage:      q.Usage,
		Revision:   q.Revision,
		CreatedAt:  q.CreatedAt,
		UpdatedAt:  q.UpdatedAt,
	}
}

func fromQuotaModel(m *quotaModel) (*quota.Quota, error) {
	qid, err := id.ParseQuotaID(m.ID)
	if err != nil {
		return nil, err
	}
	return &quota.Quota{
		Entity:     types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:         qid,
		ProductID:  m.ProductID,
		ResourceID: m.ResourceID,
		Limit:      m.Limit,
		Usage:      m.Usage,
		Revision:   m.Revision,
	}, nil
}

// ==================== Usage sample models ====================

type sampleModel struct {
	grove.BaseModel `grove:"table:capacity_usage_samples"`

	ID         string    `grove:"id,pk"`
	ProductID  string    `grove:"product_id"`
	ResourceID string    `grove:"resource_id"`
	Timestamp  time.Time `grove:"sampled_at"`
	Usage      int64     `grove:"sample_usage"`
	Limit      int64     `grove:"sample_limit"`
	Free       int64     `grove:"sample_free"`
}

func toSampleModel(s *usage.Sample) *sampleModel {
	sid := s.ID
	if sid.IsNil() {
		sid = id.NewSampleID()
	}
	return &sampleModel{
		ID:         sid.String(),
		ProductID:  s.ProductID,
		ResourceID: s.ResourceID,
		Timestamp:  s.Timestamp.UTC(),
		Usage:      s.Usage,
		Limit:      s.Limit,
		Free:       s.Free,
	}
}

func fromSampleModel(m *sampleModel) (*usage.Sample, error) {
	sid, err := id.ParseSampleID(m.ID)
	if err != nil {
		return nil, err
	}
	return &usage.Sample{
		ID:         sid,
		ProductID:  m.ProductID,
		ResourceID: m.ResourceID,
		Timestamp:  m.Timestamp,
		Usage:      m.Usage,
		Limit:      m.Limit,
		Free:       m.Free,
	}, nil
}

// Package usage holds the historical read model: samples of a product's
// usage, limit and free quantity captured over time.
package usage

import (
	"time"

	"github.com/xraph/capacity/id"
	"github.com/xraph/capacity/resource"
)

// Sample is an immutable reading. Free is the value captured at Timestamp
// and is never recomputed from Limit and Usage.
type Sample struct {
	ID         id.SampleID `json:"id"`
	ProductID  string      `json:"product_id"`
	ResourceID string      `json:"resource_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Usage      int64       `json:"usage"`
	Limit      int64       `json:"limit"`
	Free       int64       `json:"free"`
}

// Point is a sample as it appears inside a Series.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Usage     int64     `json:"usage"`
	Limit     int64     `json:"limit"`
	Free      int64     `json:"free"`
}

// Series is the time-ordered history of one resource for one product.
type Series struct {
	ResourceID string        `json:"resource_id"`
	Unit       resource.Unit `json:"unit,omitempty"`
	Points     []Point       `json:"points"`
}

// QueryOpts bounds a sample query. Start and End are inclusive.
type QueryOpts struct {
	ResourceID string
	Start      time.Time
	End        time.Time
	Limit      int
	Offset     int
}

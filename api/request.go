package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// dateLayout is the whole-day format of the usage report range.
const dateLayout = "2006-01-02"

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	return nil
}

type allocationRequest struct {
	ResourceID string `json:"resource_id"`
	Limit      int64  `json:"limit"`
}

// uploadRequest leaves per-item checks to the engine so that every bad item
// is reported in one response.
type uploadRequest struct {
	Quotas []allocationRequest `json:"quotas" validate:"required,min=1"`
}

type draftRequest struct {
	FromProductID string `json:"from_product_id" validate:"required"`
	ToProductID   string `json:"to_product_id"   validate:"required"`
	ResourceID    string `json:"resource_id"     validate:"required"`
	Amount        int64  `json:"amount"          validate:"required,gt=0"`
}

type commitRequest struct {
	draftRequest
	SnapshotToken string `json:"snapshot_token" validate:"required"`
}

type sampleRequest struct {
	ResourceID string    `json:"resource_id" validate:"required"`
	Timestamp  time.Time `json:"timestamp"`
	Usage      int64     `json:"usage"       validate:"gte=0"`
	Limit      int64     `json:"limit"       validate:"gte=0"`
	Free       *int64    `json:"free"`
}

type samplesRequest struct {
	Samples []sampleRequest `json:"samples" validate:"required,min=1,dive"`
}

// parseDay reads a YYYY-MM-DD query parameter as a UTC day.
func parseDay(r *http.Request, key string) (time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return time.Time{}, fmt.Errorf("missing required query parameter %q", key)
	}
	t, err := time.ParseInLocation(dateLayout, v, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: want YYYY-MM-DD", key, v)
	}
	return t, nil
}

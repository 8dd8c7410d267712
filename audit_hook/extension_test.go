package audithook_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/capacity"
	audithook "github.com/xraph/capacity/audit_hook"
	"github.com/xraph/capacity/id"
	"github.com/xraph/capacity/quota"
	"github.com/xraph/capacity/transfer"
)

type capture struct {
	events []*audithook.AuditEvent
}

func (c *capture) Record(_ context.Context, evt *audithook.AuditEvent) error {
	c.events = append(c.events, evt)
	return nil
}

func TestTransferCommittedEvent(t *testing.T) {
	rec := &capture{}
	ext := audithook.New(rec)

	res := &transfer.Result{
		ID:       id.NewTransferID(),
		Draft:    transfer.Draft{FromProductID: "p1", ToProductID: "p2", ResourceID: "cpu", Amount: 4},
		Attempts: 2,
	}
	if err := ext.OnTransferCommitted(context.Background(), res); err != nil {
		t.Fatalf("OnTransferCommitted: %v", err)
	}

	if len(rec.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(rec.events))
	}
	evt := rec.events[0]
	if evt.Action != audithook.ActionTransferCommitted {
		t.Errorf("action = %q", evt.Action)
	}
	if evt.ResourceID != res.ID.String() {
		t.Errorf("resource id = %q, want %q", evt.ResourceID, res.ID.String())
	}
	if evt.Metadata["amount"] != int64(4) {
		t.Errorf("amount metadata = %v", evt.Metadata["amount"])
	}
	if evt.Metadata["attempts"] != 2 {
		t.Errorf("attempts metadata = %v", evt.Metadata["attempts"])
	}
}

func TestTransferRejectedSeverity(t *testing.T) {
	tests := []struct {
		reason   error
		severity string
	}{
		{capacity.ErrConflict, audithook.SeverityWarning},
		{capacity.ErrInsufficientLimit, audithook.SeverityInfo},
	}

	for _, tt := range tests {
		t.Run(tt.reason.Error(), func(t *testing.T) {
			rec := &capture{}
			ext := audithook.New(rec)
			if err := ext.OnTransferRejected(context.Background(), transfer.Draft{}, tt.reason); err != nil {
				t.Fatal(err)
			}
			evt := rec.events[0]
			if evt.Severity != tt.severity {
				t.Errorf("severity = %q, want %q", evt.Severity, tt.severity)
			}
			if evt.Outcome != audithook.OutcomeFailure {
				t.Errorf("outcome = %q", evt.Outcome)
			}
			if evt.Reason != tt.reason.Error() {
				t.Errorf("reason = %q", evt.Reason)
			}
		})
	}
}

func TestFeasibleSimulationNotAudited(t *testing.T) {
	rec := &capture{}
	ext := audithook.New(rec)

	_ = ext.OnTransferSimulated(context.Background(), &transfer.Simulation{Feasible: true})
	_ = ext.OnTransferSimulated(context.Background(), &transfer.Simulation{Feasible: false})

	if len(rec.events) != 1 {
		t.Fatalf("expected only the infeasible simulation, got %d events", len(rec.events))
	}
}

func TestInfeasibleSimulationReason(t *testing.T) {
	tests := []struct {
		name      string
		fromLimit int64
		want      error
	}{
		{"source short", -50, capacity.ErrInsufficientLimit},
		{"destination overflow", 900, capacity.ErrLimitOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &capture{}
			ext := audithook.New(rec)
			sim := &transfer.Simulation{ID: id.NewTransferID()}
			sim.From.Projected = quota.Balance{Limit: tt.fromLimit}
			if err := ext.OnTransferSimulated(context.Background(), sim); err != nil {
				t.Fatal(err)
			}
			if len(rec.events) != 1 || rec.events[0].Reason != tt.want.Error() {
				t.Fatalf("events = %+v, want reason %q", rec.events, tt.want)
			}
		})
	}
}

func TestActionFilters(t *testing.T) {
	ctx := context.Background()
	q := &quota.Quota{ID: id.NewQuotaID(), ProductID: "p1", ResourceID: "cpu", Limit: 1, Usage: 3}

	t.Run("enabled", func(t *testing.T) {
		rec := &capture{}
		ext := audithook.New(rec, audithook.WithEnabledActions(audithook.ActionQuotaOver))
		_ = ext.OnOverQuota(ctx, q)
		_ = ext.OnSamplesFlushed(ctx, 10, time.Second)
		if len(rec.events) != 1 || rec.events[0].Action != audithook.ActionQuotaOver {
			t.Fatalf("unexpected events: %+v", rec.events)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		rec := &capture{}
		ext := audithook.New(rec, audithook.WithDisabledActions(audithook.ActionSamplesFlushed))
		_ = ext.OnOverQuota(ctx, q)
		_ = ext.OnSamplesFlushed(ctx, 10, time.Second)
		if len(rec.events) != 1 || rec.events[0].Action != audithook.ActionQuotaOver {
			t.Fatalf("unexpected events: %+v", rec.events)
		}
	})
}

func TestRecorderFailureSwallowed(t *testing.T) {
	ext := audithook.New(audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("backend down")
	}))
	if err := ext.OnQuotasUploaded(context.Background(), "p1", nil); err != nil {
		t.Fatalf("expected recorder failure to be swallowed, got %v", err)
	}
}

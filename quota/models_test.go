package quota

import "testing"

func TestQuotaFree(t *testing.T) {
	tests := []struct {
		name string
		q    Quota
		free int64
		over bool
	}{
		{"headroom", Quota{Limit: 1000, Usage: 400}, 600, false},
		{"exhausted", Quota{Limit: 100, Usage: 100}, 0, false},
		{"over quota", Quota{Limit: 100, Usage: 250}, -150, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.q.Free(); got != tt.free {
				t.Errorf("Free() = %d, want %d", got, tt.free)
			}
			if got := tt.q.Over(); got != tt.over {
				t.Errorf("Over() = %v, want %v", got, tt.over)
			}
		})
	}
}

func TestRevisionOf(t *testing.T) {
	if got := RevisionOf(nil); got != Absent {
		t.Errorf("RevisionOf(nil) = %+v, want Absent", got)
	}
	if got := RevisionOf(&Quota{Revision: 0}); got != At(0) {
		t.Errorf("RevisionOf(rev 0) = %+v, want At(0)", got)
	}
	if At(0) == Absent {
		t.Error("revision zero must differ from absent")
	}
	if Absent.String() != "-" || At(12).String() != "12" {
		t.Errorf("unexpected renderings %q %q", Absent.String(), At(12).String())
	}
}

func TestMoveProductOrder(t *testing.T) {
	m := &Move{FromProductID: "zeta", ToProductID: "alpha"}
	first, second := m.ProductOrder()
	if first != "alpha" || second != "zeta" {
		t.Errorf("ProductOrder() = %q, %q", first, second)
	}
}

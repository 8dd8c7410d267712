package transfer

import (
	"errors"
	"testing"

	"github.com/xraph/capacity/quota"
)

func TestTokenRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		snap  Snapshot
		token string
	}{
		{"both present", Snapshot{From: quota.At(4), To: quota.At(0)}, "v1.4.0"},
		{"absent destination", Snapshot{From: quota.At(7), To: quota.Absent}, "v1.7.-"},
		{"both absent", Snapshot{}, "v1.-.-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.snap.Token(); got != tt.token {
				t.Fatalf("Token() = %q, want %q", got, tt.token)
			}
			parsed, err := ParseToken(tt.token)
			if err != nil {
				t.Fatalf("ParseToken(%q): %v", tt.token, err)
			}
			if parsed != tt.snap {
				t.Errorf("ParseToken(%q) = %+v, want %+v", tt.token, parsed, tt.snap)
			}
		})
	}
}

func TestParseTokenRejects(t *testing.T) {
	for _, token := range []string{"", "v1.1", "v2.1.1", "v1.a.1", "v1.1.-3", "v1.1.1.1"} {
		t.Run(token, func(t *testing.T) {
			if _, err := ParseToken(token); !errors.Is(err, ErrMalformedToken) {
				t.Errorf("ParseToken(%q) error = %v, want ErrMalformedToken", token, err)
			}
		})
	}
}

func TestSnapshotMatches(t *testing.T) {
	from := &quota.Quota{ProductID: "x", Revision: 3}
	to := &quota.Quota{ProductID: "y", Revision: 0}

	snap := SnapshotOf(from, nil)
	if !snap.Matches(from, nil) {
		t.Error("snapshot should match the records it was taken from")
	}
	if snap.Matches(from, to) {
		t.Error("a destination created after the snapshot must not match")
	}

	bumped := *from
	bumped.Revision++
	if snap.Matches(&bumped, nil) {
		t.Error("a bumped source revision must not match")
	}
}

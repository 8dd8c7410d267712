// Package transfer models the two-phase movement of limit between two
// products: a side-effect-free simulation that captures a snapshot of both
// records, and a commit that succeeds only if that snapshot is still current.
package transfer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xraph/capacity/id"
	"github.com/xraph/capacity/quota"
)

// Draft is a requested transfer of Amount base units of ResourceID from one
// product to another.
type Draft struct {
	FromProductID string `json:"from_product_id"`
	ToProductID   string `json:"to_product_id"`
	ResourceID    string `json:"resource_id"`
	Amount        int64  `json:"amount"`
}

func (d Draft) String() string {
	return fmt.Sprintf("%d %s %s->%s", d.Amount, d.ResourceID, d.FromProductID, d.ToProductID)
}

// Snapshot is the pair of revisions a simulation observed.
type Snapshot struct {
	From quota.Revision `json:"from"`
	To   quota.Revision `json:"to"`
}

// SnapshotOf captures the current revisions of the two records.
func SnapshotOf(from, to *quota.Quota) Snapshot {
	return Snapshot{From: quota.RevisionOf(from), To: quota.RevisionOf(to)}
}

// Matches reports whether both records are still at the captured revisions,
// including presence.
func (s Snapshot) Matches(from, to *quota.Quota) bool {
	return s == SnapshotOf(from, to)
}

const tokenVersion = "v1"

// ErrMalformedToken is returned by ParseToken.
var ErrMalformedToken = errors.New("transfer: malformed snapshot token")

// Token encodes the snapshot for clients, e.g. "v1.4.-" for a source at
// revision 4 and an absent destination.
func (s Snapshot) Token() string {
	return tokenVersion + "." + s.From.String() + "." + s.To.String()
}

// ParseToken decodes a token produced by Token.
func ParseToken(token string) (Snapshot, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] != tokenVersion {
		return Snapshot{}, fmt.Errorf("%w: %q", ErrMalformedToken, token)
	}

	from, err := parseRevision(parts[1])
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %q", ErrMalformedToken, token)
	}
	to, err := parseRevision(parts[2])
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %q", ErrMalformedToken, token)
	}

	return Snapshot{From: from, To: to}, nil
}

func parseRevision(s string) (quota.Revision, error) {
	if s == "-" {
		return quota.Absent, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return quota.Revision{}, ErrMalformedToken
	}
	return quota.At(v), nil
}

// Side is one product's view within a simulation.
type Side struct {
	ProductID string         `json:"product_id"`
	Current   quota.Balance  `json:"current"`
	Projected quota.Balance  `json:"projected"`
	Revision  quota.Revision `json:"revision"`
}

// Simulation is the outcome of a simulate call. A simulation never writes;
// Feasible is false when the projected source limit would be negative.
type Simulation struct {
	ID          id.TransferID `json:"id"`
	Draft       Draft         `json:"draft"`
	From        Side          `json:"from"`
	To          Side          `json:"to"`
	Snapshot    Snapshot      `json:"snapshot"`
	Token       string        `json:"snapshot_token"`
	Feasible    bool          `json:"feasible"`
	SimulatedAt time.Time     `json:"simulated_at"`
}

// Applied is one product's state right after a commit.
type Applied struct {
	ProductID string        `json:"product_id"`
	Balance   quota.Balance `json:"balance"`
	Revision  int64         `json:"revision"`
	Created   bool          `json:"created,omitempty"`
}

// Result is the outcome of a successful commit.
type Result struct {
	ID          id.TransferID `json:"id"`
	Draft       Draft         `json:"draft"`
	From        Applied       `json:"from"`
	To          Applied       `json:"to"`
	Attempts    int           `json:"attempts"`
	CommittedAt time.Time     `json:"committed_at"`
}

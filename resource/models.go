// Package resource describes the catalog of finite resources that products
// are allocated against.
package resource

import (
	"github.com/xraph/capacity/types"
)

// Unit is the dimension a resource is measured in. Stored quantities are
// always integers in the unit's base: milli-cores for CORES, bytes for BYTES.
type Unit string

const (
	UnitCores Unit = "CORES"
	UnitBytes Unit = "BYTES"
)

// Valid reports whether u is a known unit.
func (u Unit) Valid() bool {
	return u == UnitCores || u == UnitBytes
}

// BaseUnit names the integer unit quantities are stored in.
func (u Unit) BaseUnit() string {
	switch u {
	case UnitCores:
		return "millicores"
	case UnitBytes:
		return "bytes"
	default:
		return ""
	}
}

type Resource struct {
	types.Entity

	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Unit        Unit   `json:"unit"`
}

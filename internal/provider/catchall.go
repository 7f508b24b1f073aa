package provider

import (
	"encoding/json"
	"fmt"
)

// CatchAll is the tri-state catch-all capability of a domain.
//
// The zero value is CatchAllUnknown so that a missing answer can never be
// mistaken for a confirmed one.
type CatchAll int

const (
	// CatchAllUnknown means the capability could not be determined.
	// Callers must branch on it explicitly.
	CatchAllUnknown CatchAll = iota

	// CatchAllEnabled means any local part is accepted, so addresses can
	// be generated locally.
	CatchAllEnabled

	// CatchAllDisabled means aliases must be created server side.
	CatchAllDisabled
)

// CatchAllFromBool converts a known boolean flag.
func CatchAllFromBool(v bool) CatchAll {
	if v {
		return CatchAllEnabled
	}
	return CatchAllDisabled
}

// Bool returns the boolean flag and whether it is known.
func (c CatchAll) Bool() (value bool, known bool) {
	switch c {
	case CatchAllEnabled:
		return true, true
	case CatchAllDisabled:
		return false, true
	default:
		return false, false
	}
}

// Known reports whether c is Enabled or Disabled.
func (c CatchAll) Known() bool {
	_, ok := c.Bool()
	return ok
}

// String returns "enabled", "disabled" or "unknown".
func (c CatchAll) String() string {
	switch c {
	case CatchAllEnabled:
		return "enabled"
	case CatchAllDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes c as true, false or null.
func (c CatchAll) MarshalJSON() ([]byte, error) {
	if v, ok := c.Bool(); ok {
		return json.Marshal(v)
	}
	return []byte("null"), nil
}

// UnmarshalJSON decodes true, false or null.
func (c *CatchAll) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case "null":
		*c = CatchAllUnknown
	case "true":
		*c = CatchAllEnabled
	case "false":
		*c = CatchAllDisabled
	default:
		return fmt.Errorf("provider: invalid catch-all value %s", b)
	}
	return nil
}

// Package model contains the lifecycle types shared across packages.
package model

import "strconv"

// Status describes where an attachment is in its lifecycle. It is persisted on
// the host record as an integer so it survives process restarts.
type Status int

const (
	StatusInvalid  Status = 0
	StatusUploaded Status = 1
	StatusStyling  Status = 2
	StatusStyled   Status = 3
	StatusStored   Status = 4
)

func (s Status) String() string {
	switch s {
	case StatusInvalid:
		return "invalid"
	case StatusUploaded:
		return "uploaded"
	case StatusStyling:
		return "styling"
	case StatusStyled:
		return "styled"
	case StatusStored:
		return "stored"
	default:
		return "status(" + strconv.Itoa(int(s)) + ")"
	}
}

// ParseStatus converts a persisted attribute value into a Status. Unknown or
// empty values map to StatusInvalid.
func ParseStatus(v any) Status {
	switch n := v.(type) {
	case Status:
		return n
	case int:
		return Status(n)
	case int16:
		return Status(n)
	case int32:
		return Status(n)
	case int64:
		return Status(n)
	case string:
		if parsed, err := strconv.Atoi(n); err == nil {
			return Status(parsed)
		}
	}
	return StatusInvalid
}

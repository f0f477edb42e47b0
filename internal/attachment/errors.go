package attachment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dharsanguruparan/styledrop/internal/stylist"
)

var (
	// ErrInvalidAssignment is returned by Assign for nil or unsupported values.
	ErrInvalidAssignment = errors.New("invalid attachment assignment")
	// ErrMissingAttribute is returned by New when the host record lacks one of
	// the attachment's fields.
	ErrMissingAttribute = errors.New("host record is missing attachment attribute")
	// ErrNoJobSystem is returned by Save when processing must be scheduled but
	// no Enqueuer is configured.
	ErrNoJobSystem = errors.New("no job system configured")
	// ErrUnknownStorage is returned by New for an unsupported storage kind.
	ErrUnknownStorage = errors.New("unknown storage kind")
)

// StylingError reports the styles that were skipped or failed in strict mode.
type StylingError struct {
	Attachment string
	Results    []stylist.Result
}

func (e *StylingError) Error() string {
	parts := make([]string, 0, len(e.Results))
	for _, r := range e.Results {
		parts = append(parts, fmt.Sprintf("%s %s: %v", r.Style, r.Outcome, r.Err))
	}
	return fmt.Sprintf("styling %s: %s", e.Attachment, strings.Join(parts, "; "))
}

// Unwrap exposes the per-style errors to errors.Is and errors.As.
func (e *StylingError) Unwrap() []error {
	errs := make([]error, 0, len(e.Results))
	for _, r := range e.Results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errs
}

package attachment

import (
	"regexp"
	"strconv"
	"strings"
)

// RuleKind selects what a validation Rule checks. It is also the key the
// rule's message is recorded under.
type RuleKind string

const (
	RulePresence    RuleKind = "presence"
	RuleSize        RuleKind = "size"
	RuleContentType RuleKind = "content_type"
)

// Default validation messages.
const (
	MsgPresence    = "must be set."
	MsgSize        = "file size must be between :min and :max bytes."
	MsgContentType = "is not one of the allowed file types."
)

// Guard is evaluated against the host record to decide whether a rule runs.
type Guard func(h HostRecord) bool

// AttributeGuard is true when the host attribute is set to a truthy value.
func AttributeGuard(name string) Guard {
	return func(h HostRecord) bool {
		switch v := h.Attribute(name).(type) {
		case nil:
			return false
		case bool:
			return v
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				return b
			}
			return v != ""
		case int:
			return v != 0
		case int64:
			return v != 0
		case float64:
			return v != 0
		default:
			return true
		}
	}
}

// Rule is one validation. If and Unless gate whether it runs.
type Rule struct {
	Kind    RuleKind
	Message string

	// Size bounds, inclusive.
	Min, Max int64
	// Allowed content types, matched exactly or by pattern.
	ContentTypes []string
	Patterns     []*regexp.Regexp

	If     Guard
	Unless Guard
}

// Presence requires a file.
func Presence() Rule { return Rule{Kind: RulePresence} }

// Size requires the file size to lie in [min, max].
func Size(min, max int64) Rule { return Rule{Kind: RuleSize, Min: min, Max: max} }

// ContentType allows the listed content types.
func ContentType(types ...string) Rule { return Rule{Kind: RuleContentType, ContentTypes: types} }

func (r Rule) applies(h HostRecord) bool {
	if r.If != nil && !r.If(h) {
		return false
	}
	if r.Unless != nil && r.Unless(h) {
		return false
	}
	return true
}

// check returns the failure message, or "" when the rule passes.
func (r Rule) check(a *Attachment) string {
	switch r.Kind {
	case RulePresence:
		if !a.File() {
			return orDefault(r.Message, MsgPresence)
		}
	case RuleSize:
		if a.File() {
			size := a.Size()
			if size < r.Min || size > r.Max {
				msg := orDefault(r.Message, MsgSize)
				return strings.NewReplacer(
					":min", strconv.FormatInt(r.Min, 10),
					":max", strconv.FormatInt(r.Max, 10),
				).Replace(msg)
			}
		}
	case RuleContentType:
		if a.File() && len(r.ContentTypes)+len(r.Patterns) > 0 && !r.allowsType(a.recordedContentType()) {
			return orDefault(r.Message, MsgContentType)
		}
	}
	return ""
}

// allowsType passes when no content type was recorded.
func (r Rule) allowsType(ct string, recorded bool) bool {
	if !recorded {
		return true
	}
	for _, t := range r.ContentTypes {
		if t == ct {
			return true
		}
	}
	for _, p := range r.Patterns {
		if p.MatchString(ct) {
			return true
		}
	}
	return false
}

func orDefault(msg, def string) string {
	if msg == "" {
		return def
	}
	return msg
}

// Package keypath resolves storage keys and public URLs from path templates.
// Resolution is pure string substitution; nothing here touches storage.
package keypath

import (
	"path"
	"strings"
)

// DirStyle is the pseudo-style that resolves to the directory holding every
// style of an attachment.
const DirStyle = "dir"

// Host is the part of a host record a template may close over.
type Host interface {
	RecordType() string
	ID() string
}

// Template yields the raw template for a host record. Templates are built at
// configuration time and evaluated per record.
type Template func(h Host) string

// Static returns a Template that ignores the host record.
func Static(tmpl string) Template {
	return func(Host) string { return tmpl }
}

// Default places files under the record type, e.g. "/Asset/:attachment/:style.:ext".
func Default(h Host) string {
	return "/" + h.RecordType() + "/:attachment/:style.:ext"
}

// Vars holds the values substituted into a template.
type Vars struct {
	Style      string
	Ext        string
	Attachment string
	ID         string
}

// Substitute replaces :style, :ext, :attachment and :id in tmpl.
func Substitute(tmpl string, v Vars) string {
	r := strings.NewReplacer(
		":style", v.Style,
		":ext", v.Ext,
		":attachment", v.Attachment,
		":id", v.ID,
	)
	return r.Replace(tmpl)
}

// Resolve evaluates t for h and substitutes v. For DirStyle the directory of
// the resolved path is returned.
func Resolve(t Template, h Host, v Vars) string {
	if t == nil {
		t = Default
	}
	p := Substitute(t(h), v)
	if v.Style == DirStyle {
		return path.Dir(p)
	}
	return p
}

// Join concatenates a root and a resolved path with exactly one slash between
// them.
func Join(root, p string) string {
	if root == "" {
		return p
	}
	return strings.TrimRight(root, "/") + "/" + strings.TrimLeft(p, "/")
}

// ForRecord returns a Template that also replaces :record_type with the host
// record's type, for templates read from configuration files.
func ForRecord(tmpl string) Template {
	return func(h Host) string {
		return strings.ReplaceAll(tmpl, ":record_type", h.RecordType())
	}
}

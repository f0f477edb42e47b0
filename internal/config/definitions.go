package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/dharsanguruparan/styledrop/internal/attachment"
	"github.com/dharsanguruparan/styledrop/internal/keypath"
	"github.com/dharsanguruparan/styledrop/internal/storage"
	"github.com/dharsanguruparan/styledrop/internal/stylist"
)

const (
	// AnyRecord is the record type whose attachments apply to every type not
	// listed explicitly.
	AnyRecord = "*"
	// DefaultPath is used by attachments that do not set a path. It keeps
	// every record's files apart.
	DefaultPath = "/:record_type/:id/:attachment/:style.:ext"
)

// ErrInvalidDefinition is returned for definitions files that cannot be used.
var ErrInvalidDefinition = errors.New("invalid attachment definition")

// AttachmentFile is one attachment as written in the definitions file.
type AttachmentFile struct {
	Storage              string           `yaml:"storage"`
	Root                 string           `yaml:"root"`
	Path                 string           `yaml:"path"`
	ProcessingURL        string           `yaml:"processing_url"`
	DefaultStyle         string           `yaml:"default_style"`
	Strict               bool             `yaml:"strict"`
	Disposition          string           `yaml:"disposition"`
	DispositionAttribute string           `yaml:"disposition_attribute"`
	Styles               []stylist.Style  `yaml:"styles"`
	Validations          []ValidationFile `yaml:"validations"`
}

// ValidationFile is one validation rule as written in the definitions file.
type ValidationFile struct {
	Kind         string   `yaml:"kind"`
	Message      string   `yaml:"message"`
	Min          int64    `yaml:"min"`
	Max          int64    `yaml:"max"`
	ContentTypes []string `yaml:"content_types"`
	Patterns     []string `yaml:"patterns"`
	If           string   `yaml:"if"`
	Unless       string   `yaml:"unless"`
}

// DefinitionsFile is the document root: attachments keyed by record type and
// attachment name.
type DefinitionsFile struct {
	Records map[string]map[string]AttachmentFile `yaml:"records"`
}

// Catalog holds the attachment definitions of every record type.
type Catalog struct {
	defs map[string]map[string]attachment.Definition
}

// DefaultCatalog gives every record type one "file" attachment with the
// default original style.
func DefaultCatalog() *Catalog {
	return &Catalog{defs: map[string]map[string]attachment.Definition{
		AnyRecord: {
			"file": {
				Name:   "file",
				Path:   keypath.ForRecord(DefaultPath),
				Styles: attachment.DefaultStyles,
			},
		},
	}}
}

// LoadCatalog reads a definitions file. An empty path yields DefaultCatalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definitions: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and checks a definitions document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var doc DefinitionsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse definitions: %w", err)
	}
	if len(doc.Records) == 0 {
		return nil, fmt.Errorf("%w: no records defined", ErrInvalidDefinition)
	}
	c := &Catalog{defs: map[string]map[string]attachment.Definition{}}
	for recordType, attachments := range doc.Records {
		c.defs[recordType] = map[string]attachment.Definition{}
		for name, af := range attachments {
			def, err := af.definition(name)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", recordType, name, err)
			}
			c.defs[recordType][name] = def
		}
	}
	return c, nil
}

func (af AttachmentFile) definition(name string) (attachment.Definition, error) {
	def := attachment.Definition{
		Name:         name,
		Root:         af.Root,
		Storage:      storage.Kind(af.Storage),
		Styles:       af.Styles,
		DefaultStyle: af.DefaultStyle,
		Strict:       af.Strict,
	}
	switch def.Storage {
	case "", storage.KindFilesystem, storage.KindS3:
	default:
		return def, fmt.Errorf("%w: storage %q", ErrInvalidDefinition, af.Storage)
	}
	tmpl := af.Path
	if tmpl == "" {
		tmpl = DefaultPath
	}
	// Staging and durable roots hold every record; the directory of a
	// resolved path is removed after storing.
	if dir := path.Dir(tmpl); dir == "/" || dir == "." {
		return def, fmt.Errorf("%w: path %q has no directory part", ErrInvalidDefinition, af.Path)
	}
	def.Path = keypath.ForRecord(tmpl)
	if af.ProcessingURL != "" {
		def.ProcessingURL = keypath.ForRecord(af.ProcessingURL)
	}
	seen := map[string]bool{}
	for i, s := range af.Styles {
		if s.Name == "" {
			return def, fmt.Errorf("%w: style without name", ErrInvalidDefinition)
		}
		// An unquoted null in YAML decodes to "".
		for j, name := range s.Stylists {
			if name == "" {
				def.Styles[i].Stylists[j] = "null"
			}
		}
		if seen[s.Name] {
			return def, fmt.Errorf("%w: duplicate style %q", ErrInvalidDefinition, s.Name)
		}
		seen[s.Name] = true
	}
	if af.DefaultStyle != "" && len(af.Styles) > 0 && !seen[af.DefaultStyle] {
		return def, fmt.Errorf("%w: default style %q is not declared", ErrInvalidDefinition, af.DefaultStyle)
	}
	switch {
	case af.DispositionAttribute != "":
		attr, fallback := af.DispositionAttribute, af.Disposition
		def.Disposition = func(h attachment.HostRecord) string {
			if v, ok := h.Attribute(attr).(string); ok && v != "" {
				return v
			}
			return fallback
		}
	case af.Disposition != "":
		def.Disposition = attachment.StaticDisposition(af.Disposition)
	}
	for _, vf := range af.Validations {
		rule, err := vf.rule()
		if err != nil {
			return def, err
		}
		def.Validations = append(def.Validations, rule)
	}
	return def, nil
}

func (vf ValidationFile) rule() (attachment.Rule, error) {
	rule := attachment.Rule{
		Kind:         attachment.RuleKind(vf.Kind),
		Message:      vf.Message,
		Min:          vf.Min,
		Max:          vf.Max,
		ContentTypes: vf.ContentTypes,
	}
	switch rule.Kind {
	case attachment.RulePresence, attachment.RuleContentType:
	case attachment.RuleSize:
		if vf.Max < vf.Min {
			return rule, fmt.Errorf("%w: size max %d below min %d", ErrInvalidDefinition, vf.Max, vf.Min)
		}
	default:
		return rule, fmt.Errorf("%w: validation kind %q", ErrInvalidDefinition, vf.Kind)
	}
	for _, p := range vf.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return rule, fmt.Errorf("%w: pattern %q: %v", ErrInvalidDefinition, p, err)
		}
		rule.Patterns = append(rule.Patterns, re)
	}
	if vf.If != "" {
		rule.If = attachment.AttributeGuard(vf.If)
	}
	if vf.Unless != "" {
		rule.Unless = attachment.AttributeGuard(vf.Unless)
	}
	return rule, nil
}

// Lookup returns the definition of attachment on recordType, falling back to
// the AnyRecord entry.
func (c *Catalog) Lookup(recordType, name string) (attachment.Definition, bool) {
	if defs, ok := c.defs[recordType]; ok {
		if def, ok := defs[name]; ok {
			return def, true
		}
	}
	def, ok := c.defs[AnyRecord][name]
	return def, ok
}

// Attachments lists the attachment names of recordType in sorted order.
func (c *Catalog) Attachments(recordType string) []string {
	seen := map[string]bool{}
	var names []string
	for _, rt := range []string{recordType, AnyRecord} {
		for name := range c.defs[rt] {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}

// UsesS3 reports whether any definition stores to the object store.
func (c *Catalog) UsesS3() bool {
	for _, defs := range c.defs {
		for _, def := range defs {
			if def.Storage == storage.KindS3 {
				return true
			}
		}
	}
	return false
}

// RecordTypes lists the configured record types in sorted order, AnyRecord
// included.
func (c *Catalog) RecordTypes() []string {
	types := make([]string, 0, len(c.defs))
	for rt := range c.defs {
		types = append(types, rt)
	}
	sort.Strings(types)
	return types
}

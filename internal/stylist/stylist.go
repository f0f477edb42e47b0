// Package stylist turns an uploaded file into styled outputs. A style names an
// ordered chain of stylists; each stylist takes a file and produces a new one.
package stylist

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/styledrop/internal/logging"
)

var (
	// ErrUnknownEncoding is returned when the probe output matches no known
	// signature. The pipeline treats it as a skipped style, not a failure.
	ErrUnknownEncoding = errors.New("unknown source encoding")
	// ErrUnknownStylist is returned for a stylist name with no registration.
	ErrUnknownStylist = errors.New("unknown stylist")
)

// Style is a named output variant of an attachment.
type Style struct {
	Name string `yaml:"name"`
	// Encoding is the output encoding; it selects the extension and media
	// type of the style.
	Encoding string `yaml:"encoding"`
	// Size is passed to image resizing, e.g. "200x200".
	Size string `yaml:"size"`
	// Params are free-form options for custom stylists.
	Params map[string]string `yaml:"params"`
	// Stylists run in order, each over the previous output.
	Stylists []string `yaml:"stylists"`
}

// Ext returns the extension of files produced for the style.
func (s Style) Ext() string { return Extension(s.Encoding) }

// Input is what a stylist works on.
type Input struct {
	// Path of the file to transform.
	Path string
	// Style being produced.
	Style Style
	// WorkDir is an empty directory the stylist may write its output to.
	WorkDir string
}

// Output returns a path in the work directory named after the style.
func (in Input) Output(ext string) string {
	return filepath.Join(in.WorkDir, in.Style.Name+"."+ext)
}

// Stylist produces a file from an input file and returns its path.
type Stylist interface {
	Make(ctx context.Context, in Input) (string, error)
}

// Func adapts a function to Stylist.
type Func func(ctx context.Context, in Input) (string, error)

// Make calls f.
func (f Func) Make(ctx context.Context, in Input) (string, error) { return f(ctx, in) }

// Registry maps stylist names to implementations.
type Registry struct {
	stylists map[string]Stylist
}

// NewRegistry returns a registry holding the builtin stylists: null,
// convert_image, convert_audio and pdf_text.
func NewRegistry(runner Runner, log *zap.Logger) *Registry {
	if runner == nil {
		runner = ExecRunner{}
	}
	log = logging.OrNop(log)
	r := &Registry{stylists: map[string]Stylist{}}
	r.Register("null", Null{})
	r.Register("convert_image", &ConvertImage{Runner: runner, Log: log})
	r.Register("convert_audio", &ConvertAudio{Runner: runner, Log: log})
	r.Register("pdf_text", PDFText{})
	return r
}

// Register adds or replaces a stylist.
func (r *Registry) Register(name string, s Stylist) {
	r.stylists[name] = s
}

// Lookup returns the stylist registered under name.
func (r *Registry) Lookup(name string) (Stylist, error) {
	s, ok := r.stylists[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStylist, name)
	}
	return s, nil
}

// Names lists registered stylists in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.stylists))
	for n := range r.stylists {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

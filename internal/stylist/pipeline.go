package stylist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/styledrop/internal/logging"
	"github.com/dharsanguruparan/styledrop/internal/metrics"
)

// Outcome of styling one style.
type Outcome int

const (
	Produced Outcome = iota
	Skipped
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Produced:
		return "produced"
	case Skipped:
		return "skipped"
	default:
		return "failed"
	}
}

// Result is the outcome for one style. Path is set when Produced; Err is set
// otherwise.
type Result struct {
	Style   string
	Outcome Outcome
	Path    string
	Err     error
}

// Report aggregates the results of one pipeline run, in style order.
type Report struct {
	Results []Result
	workDir string
}

// Produced returns the results that yielded a file.
func (r *Report) Produced() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Outcome == Produced {
			out = append(out, res)
		}
	}
	return out
}

// Problems returns the skipped and failed results.
func (r *Report) Problems() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Outcome != Produced {
			out = append(out, res)
		}
	}
	return out
}

// Cleanup removes the run's work directory. Produced paths are invalid after.
func (r *Report) Cleanup() error {
	if r.workDir == "" {
		return nil
	}
	return os.RemoveAll(r.workDir)
}

// Pipeline runs style chains through a registry.
type Pipeline struct {
	registry *Registry
	workRoot string
	log      *zap.Logger
	metrics  *metrics.Recorder
}

// NewPipeline builds a pipeline. An empty workRoot means the system temp dir.
func NewPipeline(reg *Registry, workRoot string, log *zap.Logger, rec *metrics.Recorder) *Pipeline {
	if workRoot == "" {
		workRoot = os.TempDir()
	}
	return &Pipeline{registry: reg, workRoot: workRoot, log: logging.OrNop(log), metrics: rec}
}

// Run styles upload once per style. Every chain starts from upload and feeds
// each stylist the previous output. Per-style problems land in the report;
// the returned error is reserved for failures that stop the whole run.
func (p *Pipeline) Run(ctx context.Context, upload string, styles []Style) (*Report, error) {
	work := filepath.Join(p.workRoot, "styledrop-"+uuid.NewString())
	if err := os.MkdirAll(work, 0o750); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	report := &Report{workDir: work}
	for _, style := range styles {
		res := p.runStyle(ctx, upload, style, filepath.Join(work, style.Name))
		p.metrics.Styling(style.Name, res.Outcome.String())
		switch res.Outcome {
		case Produced:
			p.log.Debug("styled", zap.String("style", style.Name), zap.String("path", res.Path))
		case Skipped:
			p.log.Info("style skipped", zap.String("style", style.Name), zap.Error(res.Err))
		default:
			p.log.Error("style failed", zap.String("style", style.Name), zap.Error(res.Err))
		}
		report.Results = append(report.Results, res)
	}
	return report, nil
}

func (p *Pipeline) runStyle(ctx context.Context, upload string, style Style, dir string) Result {
	res := Result{Style: style.Name}
	if len(style.Stylists) == 0 {
		res.Outcome = Failed
		res.Err = fmt.Errorf("style %s has no stylists defined", style.Name)
		return res
	}
	current := upload
	for i, name := range style.Stylists {
		s, err := p.registry.Lookup(name)
		if err != nil {
			res.Outcome, res.Err = Failed, err
			return res
		}
		step := filepath.Join(dir, strconv.Itoa(i))
		if err := os.MkdirAll(step, 0o750); err != nil {
			res.Outcome, res.Err = Failed, fmt.Errorf("create work dir: %w", err)
			return res
		}
		out, err := s.Make(ctx, Input{Path: current, Style: style, WorkDir: step})
		if err != nil {
			res.Outcome, res.Err = Failed, err
			if errors.Is(err, ErrUnknownEncoding) {
				res.Outcome = Skipped
			}
			return res
		}
		current = out
	}
	res.Outcome, res.Path = Produced, current
	return res
}

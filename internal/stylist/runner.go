package stylist

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes an external command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name with args. A non-zero exit is returned as an error
// carrying the command's stderr.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// Probe describes a file with the `file` utility.
func Probe(ctx context.Context, r Runner, path string) (string, error) {
	out, err := r.Run(ctx, "file", "-b", path)
	if err != nil {
		return "", fmt.Errorf("probe %s: %w", path, err)
	}
	return strings.TrimSpace(out), nil
}

// Tokens are substituted into command arguments.
type Tokens struct {
	SrcPath     string
	SrcEncoding string
	DstPath     string
	DstEncoding string
}

// Expand substitutes :src_path, :src_encoding, :dst_path and :dst_encoding in
// each argument. Arguments are passed to the command as-is, so paths never
// need quoting.
func (t Tokens) Expand(args []string) []string {
	r := strings.NewReplacer(
		":src_path", t.SrcPath,
		":src_encoding", t.SrcEncoding,
		":dst_path", t.DstPath,
		":dst_encoding", t.DstEncoding,
	)
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = r.Replace(a)
	}
	return out
}

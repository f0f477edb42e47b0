package stylist

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Null passes its input through unchanged.
type Null struct{}

// Make returns the input path.
func (Null) Make(_ context.Context, in Input) (string, error) {
	return in.Path, nil
}

// ConvertImage resizes images with ImageMagick's convert.
type ConvertImage struct {
	Runner Runner
	Log    *zap.Logger
}

// Make probes the input and runs `convert :src_path -resize SIZE :dst_path`.
// An input that is not a known image yields ErrUnknownEncoding.
func (c *ConvertImage) Make(ctx context.Context, in Input) (string, error) {
	src, err := detect(ctx, c.Runner, c.Log, in.Path, ImageEncodings)
	if err != nil {
		return "", err
	}
	dst := outputEncoding(in.Style, src)
	tokens := Tokens{SrcPath: in.Path, SrcEncoding: src.Name, DstPath: in.Output(dst.Ext), DstEncoding: dst.Name}
	args := []string{":src_path"}
	if in.Style.Size != "" {
		args = append(args, "-resize", in.Style.Size)
	}
	args = append(args, ":dst_path")
	if _, err := c.Runner.Run(ctx, "convert", tokens.Expand(args)...); err != nil {
		return "", fmt.Errorf("convert %s to %s: %w", in.Path, dst.Name, err)
	}
	return tokens.DstPath, nil
}

// ConvertAudio transcodes audio with sox.
type ConvertAudio struct {
	Runner Runner
	Log    *zap.Logger
}

// Make probes the input and runs
// `sox -t :src_encoding :src_path -t :dst_encoding :dst_path`.
func (c *ConvertAudio) Make(ctx context.Context, in Input) (string, error) {
	src, err := detect(ctx, c.Runner, c.Log, in.Path, AudioEncodings)
	if err != nil {
		return "", err
	}
	dst := outputEncoding(in.Style, src)
	tokens := Tokens{SrcPath: in.Path, SrcEncoding: src.Name, DstPath: in.Output(dst.Ext), DstEncoding: dst.Name}
	args := tokens.Expand([]string{"-t", ":src_encoding", ":src_path", "-t", ":dst_encoding", ":dst_path"})
	if _, err := c.Runner.Run(ctx, "sox", args...); err != nil {
		return "", fmt.Errorf("convert %s to %s: %w", in.Path, dst.Name, err)
	}
	return tokens.DstPath, nil
}

func detect(ctx context.Context, r Runner, log *zap.Logger, path string, table []Encoding) (Encoding, error) {
	desc, err := Probe(ctx, r, path)
	if err != nil {
		return Encoding{}, err
	}
	enc, ok := MatchEncoding(desc, table)
	if !ok {
		if log != nil {
			log.Info("unknown source encoding", zap.String("path", path), zap.String("probe", desc))
		}
		return Encoding{}, fmt.Errorf("%s: %w", path, ErrUnknownEncoding)
	}
	return enc, nil
}

// outputEncoding is the style's declared encoding, or the source encoding
// when the style declares none.
func outputEncoding(s Style, src Encoding) Encoding {
	if e, ok := LookupEncoding(s.Encoding); ok {
		return e
	}
	return src
}

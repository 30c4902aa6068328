// Package pack turns a mod source tree into a .tmod archive.
package pack

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jchantrell/tmodpack/internal/buildinfo"
	"github.com/jchantrell/tmodpack/internal/tmod"
)

// DefaultFormatVersion is written when Options.FormatVersion is empty.
const DefaultFormatVersion = "2024.8.3.0"

// ProgressCallback is called after each file has been prepared.
type ProgressCallback func(current int, total int, description string)

// Options configures a pack run.
type Options struct {
	// FormatVersion is written to the archive header.
	FormatVersion string

	// Workers bounds concurrent compression; zero means one per CPU.
	Workers int

	// Policy defaults to tmod.DefaultPolicy when its Tradeoff is zero.
	Policy      tmod.CompressionPolicy
	Transcoders []tmod.Transcoder

	Progress ProgressCallback
}

// Result is the outcome of building an archive from a source tree.
type Result struct {
	Builder     *tmod.Builder
	Metadata    *buildinfo.BuildMetadata
	Diagnostics []buildinfo.Diagnostic
	Files       int
	SourceBytes int64
}

// Build reads the manifest and every archivable file in fsys and returns a
// builder holding the Info entry followed by the files in lexical order.
func Build(ctx context.Context, fsys fs.FS, name string, opts Options) (*Result, error) {
	meta, diags, err := readManifest(fsys)
	if err != nil {
		return nil, err
	}
	for _, d := range diags {
		slog.Warn("Manifest problem", "mod", name, "detail", d.String())
	}

	if meta.Description == "" {
		if desc, err := fs.ReadFile(fsys, buildinfo.DescriptionName); err == nil {
			meta.Description = strings.TrimSpace(string(desc))
		}
	}

	files, err := Discover(fsys, meta.BuildIgnore)
	if err != nil {
		return nil, err
	}

	formatVersion := opts.FormatVersion
	if formatVersion == "" {
		formatVersion = DefaultFormatVersion
	}
	policy := opts.Policy
	if policy.Tradeoff == 0 {
		policy = tmod.DefaultPolicy()
	}

	b, err := tmod.NewBuilder(formatVersion, name, meta.Version,
		tmod.WithPolicy(policy),
		tmod.WithTranscoders(opts.Transcoders...))
	if err != nil {
		return nil, err
	}
	if err := b.AddFile(tmod.InfoEntry, meta.Encode()); err != nil {
		return nil, fmt.Errorf("adding build info: %w", err)
	}

	prepared, sourceBytes, err := prepareAll(ctx, fsys, b, files, opts)
	if err != nil {
		return nil, err
	}

	for _, e := range prepared {
		if e == nil {
			continue
		}
		if err := b.AddEntry(e); err != nil {
			return nil, err
		}
	}

	slog.Debug("Prepared archive entries",
		"mod", name,
		"files", len(files),
		"entries", b.Len())

	return &Result{
		Builder:     b,
		Metadata:    meta,
		Diagnostics: diags,
		Files:       len(files),
		SourceBytes: sourceBytes,
	}, nil
}

// prepareAll reads and compresses files on a bounded worker pool. Results
// keep the input order; skipped files leave a nil slot.
func prepareAll(ctx context.Context, fsys fs.FS, b *tmod.Builder, files []string, opts Options) ([]*tmod.BuilderEntry, int64, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	prepared := make([]*tmod.BuilderEntry, len(files))
	sizes := make([]int64, len(files))

	var mu sync.Mutex
	done := 0
	report := func(p string) {
		if opts.Progress == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		done++
		opts.Progress(done, len(files), p)
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, p := range files {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := fs.ReadFile(fsys, p)
			if err != nil {
				return fmt.Errorf("reading %s: %w", p, err)
			}
			sizes[i] = int64(len(data))

			e, err := b.Prepare(p, data)
			if errors.Is(err, tmod.ErrEmptyEntry) {
				slog.Warn("Skipping empty file", "path", p)
				report(p)
				return nil
			}
			if err != nil {
				return err
			}
			prepared[i] = e
			report(p)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, 0, err
	}

	var total int64
	for _, n := range sizes {
		total += n
	}
	return prepared, total, nil
}

func readManifest(fsys fs.FS) (*buildinfo.BuildMetadata, []buildinfo.Diagnostic, error) {
	data, err := fs.ReadFile(fsys, buildinfo.ManifestName)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("No manifest found, using defaults")
		return buildinfo.New(), nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", buildinfo.ManifestName, err)
	}

	meta, diags, err := buildinfo.ParseManifest(bytes.NewReader(data))
	if err != nil {
		return nil, diags, fmt.Errorf("parsing %s: %w", buildinfo.ManifestName, err)
	}
	return meta, diags, nil
}

// Summary describes an archive written by Dir.
type Summary struct {
	*Result
	Output string
	Bytes  int64
}

// Dir packs the mod source directory dir into outputDir/<name>.tmod, where
// name is the directory's base name.
func Dir(ctx context.Context, dir, outputDir string, opts Options) (*Summary, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving source directory: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("reading source directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", abs)
	}

	name := filepath.Base(abs)
	res, err := Build(ctx, os.DirFS(abs), name, opts)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	output := filepath.Join(outputDir, name+".tmod")
	n, err := res.Builder.SaveFile(output)
	if err != nil {
		return nil, fmt.Errorf("writing %s: %w", output, err)
	}

	slog.Info("Packed mod",
		"name", name,
		"version", res.Metadata.Version,
		"entries", res.Builder.Len(),
		"output", output)

	return &Summary{Result: res, Output: output, Bytes: n}, nil
}

package export

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jchantrell/tmodpack/internal/buildinfo"
	"github.com/jchantrell/tmodpack/internal/tmod"
)

// FileLoader defines the interface for loading entries from an archive
type FileLoader interface {
	ListEntries() []string
	GetFile(path string) ([]byte, error)
}

// Exporter handles exporting archive entries to disk
type Exporter struct {
	loader        FileLoader
	outputDir     string
	convertImages bool
}

// NewExporter creates a new file exporter. When convertImages is set,
// .rawimg entries are written back out as .png files.
func NewExporter(loader FileLoader, outputDir string, convertImages bool) *Exporter {
	return &Exporter{
		loader:        loader,
		outputDir:     outputDir,
		convertImages: convertImages,
	}
}

// ProgressCallback is called to report export progress
type ProgressCallback func(current int, total int, description string)

// ExportAll exports every entry in table order
func (e *Exporter) ExportAll(progressCallback ProgressCallback) (int, error) {
	return e.ExportFiles(e.loader.ListEntries(), progressCallback)
}

// ExportFiles exports the specified entries to the output directory and
// returns how many were written. The Info entry is written as build.txt and
// description.txt so the output can be packed again.
func (e *Exporter) ExportFiles(files []string, progressCallback ProgressCallback) (int, error) {
	if len(files) == 0 {
		return 0, nil
	}

	// Create output directory
	if err := os.MkdirAll(e.outputDir, 0755); err != nil {
		return 0, fmt.Errorf("creating output directory: %w", err)
	}

	totalFiles := len(files)
	processedCount := 0

	for _, filePath := range files {
		fileData, err := e.loader.GetFile(filePath)
		if err != nil {
			return processedCount, fmt.Errorf("loading file %s: %w", filePath, err)
		}

		switch {
		case filePath == tmod.InfoEntry:
			if err := e.exportBuildInfo(fileData); err != nil {
				return processedCount, fmt.Errorf("exporting build info: %w", err)
			}
		case e.convertImages && strings.EqualFold(filepath.Ext(filePath), ".rawimg"):
			outputPath, err := e.localPath(strings.TrimSuffix(filePath, filepath.Ext(filePath)) + ".png")
			if err != nil {
				return processedCount, err
			}
			if err := ConvertRawImageToPNG(fileData, outputPath); err != nil {
				return processedCount, fmt.Errorf("converting raw image %s: %w", filePath, err)
			}
			slog.Debug("Converted raw image to PNG", "path", filePath, "output", outputPath)
		default:
			outputPath, err := e.localPath(filePath)
			if err != nil {
				return processedCount, err
			}
			if err := os.WriteFile(outputPath, fileData, 0644); err != nil {
				return processedCount, fmt.Errorf("writing file %s: %w", outputPath, err)
			}
			slog.Debug("Copied file", "path", filePath, "output", outputPath)
		}

		// Update progress for all files
		processedCount++
		if progressCallback != nil {
			progressCallback(processedCount, totalFiles, filePath)
		}
	}

	return processedCount, nil
}

func (e *Exporter) exportBuildInfo(data []byte) error {
	meta, err := buildinfo.Decode(data)
	if err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(e.outputDir, buildinfo.ManifestName), []byte(meta.FormatManifest()), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", buildinfo.ManifestName, err)
	}
	if meta.Description != "" {
		if err := os.WriteFile(filepath.Join(e.outputDir, buildinfo.DescriptionName), []byte(meta.Description+"\n"), 0644); err != nil {
			return fmt.Errorf("writing description: %w", err)
		}
	}
	return nil
}

// localPath maps an entry path below the output directory, creating its
// parent. Paths that would escape the directory are rejected.
func (e *Exporter) localPath(entryPath string) (string, error) {
	rel := filepath.FromSlash(entryPath)
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("entry path %q escapes the output directory", entryPath)
	}
	outputPath := filepath.Join(e.outputDir, rel)
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return "", fmt.Errorf("creating directory for %s: %w", entryPath, err)
	}
	return outputPath, nil
}

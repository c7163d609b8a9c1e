package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// OutputManager organizes exported run results under one directory per run.
type OutputManager struct {
	BaseOutputDir string
}

// NewOutputManager creates a new output manager
func NewOutputManager(baseOutputDir string) *OutputManager {
	return &OutputManager{
		BaseOutputDir: baseOutputDir,
	}
}

// RunDir returns (and creates) the directory holding a run's exports.
func (om *OutputManager) RunDir(runID string) (string, error) {
	if runID == "" || strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return "", fmt.Errorf("invalid run id %q", runID)
	}
	dir := filepath.Join(om.BaseOutputDir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create run output directory: %w", err)
	}
	return dir, nil
}

// FilePath generates the full path of an export file for a run.
// Any directory part of fileName is discarded.
func (om *OutputManager) FilePath(runID, fileName string) (string, error) {
	dir, err := om.RunDir(runID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filepath.Base(fileName)), nil
}

// ExistingFile resolves a previously exported file without creating anything.
func (om *OutputManager) ExistingFile(runID, fileName string) (string, error) {
	if runID == "" || strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return "", fmt.Errorf("invalid run id %q", runID)
	}
	path := filepath.Join(om.BaseOutputDir, runID, filepath.Base(fileName))
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return path, nil
}

// ListFiles returns the export file names recorded for a run, sorted.
func (om *OutputManager) ListFiles(runID string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(om.BaseOutputDir, filepath.Base(runID)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// DownloadURL generates the API path serving an exported file.
func (om *OutputManager) DownloadURL(runID, fileName string) string {
	return fmt.Sprintf("/api/v1/download/%s/%s", runID, filepath.Base(fileName))
}

// FileType determines the export format from the file extension.
func (om *OutputManager) FileType(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		return "csv"
	case ".json":
		return "json"
	default:
		return "unknown"
	}
}

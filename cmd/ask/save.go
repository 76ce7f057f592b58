package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/couchcryptid/flood-context-service/internal/domain"
	"github.com/couchcryptid/flood-context-service/internal/report"
)

func writeJSON(w io.Writer, result domain.AskResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// saveResult writes <query_id>.json, <query_id>.md and <query_id>.pdf into
// dir, creating it if needed, and returns the written paths.
func saveResult(dir string, result domain.AskResult) ([]string, error) {
	if result.QueryID == "" {
		return nil, fmt.Errorf("result has no query id")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}

	jsonPath := filepath.Join(dir, result.QueryID+".json")
	f, err := os.Create(jsonPath)
	if err != nil {
		return nil, err
	}
	if err := writeJSON(f, result); err != nil {
		f.Close()
		return nil, fmt.Errorf("write %s: %w", jsonPath, err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	mdPath := filepath.Join(dir, result.QueryID+".md")
	if err := os.WriteFile(mdPath, []byte(report.Render(result)), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", mdPath, err)
	}

	pdf, err := report.RenderPDF(result)
	if err != nil {
		return nil, err
	}
	pdfPath := filepath.Join(dir, result.QueryID+".pdf")
	if err := os.WriteFile(pdfPath, pdf, 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", pdfPath, err)
	}
	return []string{jsonPath, mdPath, pdfPath}, nil
}

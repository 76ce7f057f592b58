// Command validate checks saved ask results (the JSON written by cmd/ask)
// for internal consistency: intent ranges, flood-event ordering and limits,
// forecast windows, SVI variable subsets, field gating, and highlight rules.
//
// Usage:
//
//	go run ./cmd/validate results/
//	go run ./cmd/validate results/2b6c0d8e.json results/91f3a2c4.json
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/couchcryptid/flood-context-service/internal/domain"
)

var cli struct {
	Paths   []string `arg:"" help:"Result JSON files or directories containing them." type:"path"`
	Verbose bool     `short:"v" help:"List every result checked."`
}

func main() {
	kong.Parse(&cli,
		kong.Name("validate"),
		kong.Description("Check saved flood-risk ask results for consistency."),
	)
	os.Exit(run(cli.Paths, cli.Verbose))
}

func run(paths []string, verbose bool) int {
	fmt.Println("=== Ask Result Validation ===")
	fmt.Println()

	files, err := collectFiles(paths)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "FATAL: no result files found")
		return 1
	}

	results := make(map[string]domain.AskResult, len(files))
	for _, f := range files {
		r, err := loadResult(f)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load %s: %v\n", f, err)
			return 1
		}
		results[f] = r
		if verbose {
			fmt.Printf("  loaded %s (%d locations)\n", f, len(r.FullRetrievalData.Locations))
		}
	}

	phases := validate(files, results)

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Results: %d\n", len(files))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// collectFiles expands directories to the *.json files directly inside them.
func collectFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(p, "*.json"))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	return files, nil
}

func loadResult(path string) (domain.AskResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.AskResult{}, err
	}
	var r domain.AskResult
	if err := json.Unmarshal(data, &r); err != nil {
		return domain.AskResult{}, err
	}
	if strings.TrimSpace(r.Query) == "" {
		return domain.AskResult{}, fmt.Errorf("not an ask result: missing query")
	}
	return r, nil
}

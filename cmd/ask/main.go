// Command ask runs the flood-risk pipeline once per question, from the
// command line or interactively from stdin, and optionally saves each result
// as JSON plus a Markdown report.
//
// Usage:
//
//	go run ./cmd/ask "What is the flood risk in Tuscaloosa, Alabama?"
//	go run ./cmd/ask --out results/
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/couchcryptid/flood-context-service/internal/app"
	"github.com/couchcryptid/flood-context-service/internal/config"
	"github.com/couchcryptid/flood-context-service/internal/domain"
	"github.com/couchcryptid/flood-context-service/internal/observability"
)

var cli struct {
	Query    []string `arg:"" optional:"" help:"Question to ask. Reads questions from stdin when omitted."`
	Out      string   `short:"o" help:"Directory to save <query_id>.json, .md and .pdf reports into." type:"path"`
	JSON     bool     `help:"Print the full result as JSON instead of the answer text."`
	Publish  bool     `help:"Also send results to the configured audit topic and report bucket."`
	EnvFile  string   `name:"env-file" default:".env" help:"Environment file to load if present."`
	LogLevel string   `name:"log-level" default:"warn" enum:"debug,info,warn,error" help:"Log level."`
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("ask"),
		kong.Description("Ask a flood-risk question about a US place."),
	)

	_ = godotenv.Load(cli.EnvFile)
	cfg, err := config.Load()
	if err != nil {
		kctx.Fatalf("load config: %v", err)
	}
	logger := observability.NewLogger(cli.LogLevel, "text")
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, metrics)
	if err != nil {
		kctx.Fatalf("start: %v", err)
	}
	defer a.Close()

	r := &runner{asker: a.Pipeline, out: os.Stdout, dir: cli.Out, json: cli.JSON}
	if cli.Publish {
		r.sinks = a.Sinks
	}

	if len(cli.Query) > 0 {
		if !r.ask(ctx, strings.Join(cli.Query, " ")) {
			a.Close()
			os.Exit(1)
		}
		return
	}
	r.interactive(ctx, os.Stdin)
}

type asker interface {
	Process(ctx context.Context, query string) (domain.AskResult, error)
}

type runner struct {
	asker asker
	sinks []domain.ResultSink
	out   io.Writer
	dir   string
	json  bool
}

// interactive reads one question per line until EOF, "quit", or "exit".
func (r *runner) interactive(ctx context.Context, in io.Reader) {
	fmt.Fprintln(r.out, "Ask about flood risk for a US place. Type 'quit' to exit.")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(r.out, "\n> ")
		if !scanner.Scan() || ctx.Err() != nil {
			fmt.Fprintln(r.out)
			return
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "exit":
			return
		}
		r.ask(ctx, line)
	}
}

// ask answers one question and reports whether it succeeded.
func (r *runner) ask(ctx context.Context, query string) bool {
	result, err := r.asker.Process(ctx, query)
	if err != nil {
		fmt.Fprintf(r.out, "Error (%s): %s\n", domain.KindOf(err), domain.UserMessage(err))
		return false
	}

	if r.json {
		if err := writeJSON(r.out, result); err != nil {
			fmt.Fprintf(r.out, "Error: %v\n", err)
			return false
		}
	} else {
		printSummary(r.out, result)
	}

	if r.dir != "" {
		paths, err := saveResult(r.dir, result)
		if err != nil {
			fmt.Fprintf(r.out, "Error saving result: %v\n", err)
			return false
		}
		for _, p := range paths {
			fmt.Fprintf(r.out, "Saved %s\n", p)
		}
	}

	for _, sink := range r.sinks {
		if err := sink.Publish(ctx, result); err != nil {
			fmt.Fprintf(r.out, "Warning: publish failed: %v\n", err)
		}
	}
	return true
}

func printSummary(w io.Writer, result domain.AskResult) {
	fmt.Fprintln(w, result.Answer)
	if h := result.Highlight; h != nil {
		fmt.Fprintf(w, "\nHighlighted county: %s, %s (FIPS %s)\n", h.CountyName, h.StateName, h.FIPSCode)
	}
	for _, loc := range result.FilteredContext.FilteredData {
		for _, gap := range loc.Warnings {
			fmt.Fprintf(w, "Data gap (%s): %s\n", loc.InputLocation.Name, gap)
		}
	}
}

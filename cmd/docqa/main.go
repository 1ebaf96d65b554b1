package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/seanblong/docqa/internal/app"
	"github.com/seanblong/docqa/internal/config"
	"github.com/seanblong/docqa/internal/discovery"
	"github.com/seanblong/docqa/pkg/models"
	"github.com/spf13/pflag"
)

func main() {
	fs := pflag.NewFlagSet("docqa", pflag.ExitOnError)
	query := fs.StringP("query", "q", "", "Ask a single question and exit")
	listCategories := fs.Bool("list-categories", false, "List file categories and exit")

	cfg, err := config.Load("", fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	fs.Usage = cfg.Usage

	if *listCategories {
		printCategories(os.Stdout)
		return
	}

	level, _ := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *query, os.Stdin, os.Stdout); err != nil {
		log.Error().Err(err).Msg("docqa failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Specification, query string, in io.Reader, out io.Writer) error {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Fprintf(out, "Checking for new documents in %s\n", cfg.DataDir)
	categories := cfg.Categories()
	fmt.Fprintf(out, "Using embedding model: %s\n", orDefault(cfg.EmbedModel, cfg.Provider))
	fmt.Fprintf(out, "Chunk size: %d, Overlap: %d\n", cfg.ChunkSize, cfg.ChunkOverlap)
	fmt.Fprintf(out, "Enabled file categories: %s\n", strings.Join(categories, ", "))
	fmt.Fprintf(out, "Processing file types: %s\n", strings.Join(sortedKeys(discovery.EnabledExtensions(categories)), ", "))

	sum, err := a.Ingest(ctx)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	if sum.FilesIngested > 0 {
		fmt.Fprintf(out, "Processed %d new documents (%d chunks).\n", sum.FilesIngested, sum.ChunksAdded)
	} else {
		fmt.Fprintln(out, "No new documents found. Using existing document embeddings.")
	}
	if sum.FilesFailed > 0 {
		fmt.Fprintf(out, "%d documents could not be processed and will be retried next run.\n", sum.FilesFailed)
	}

	fmt.Fprintf(out, "Using %s prompt template for queries.\n", a.Search.Options().Style)
	info, err := a.Search.DocumentInfo(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Document Status: %s\n", info.Status)
	if info.TotalChunks > 0 {
		fmt.Fprintf(out, "Total chunks in vector store: %d\n", info.TotalChunks)
	}

	p := newPrinter(out)
	if strings.TrimSpace(query) != "" {
		res, err := a.Search.Ask(ctx, query)
		if err != nil {
			return err
		}
		p.result(res)
		return nil
	}
	return repl(ctx, in, p, a.Search.Ask)
}

type askFunc func(ctx context.Context, question string) (models.QueryResult, error)

// repl reads questions until exit, quit, EOF or cancellation. A failed
// question is reported and the session continues.
func repl(ctx context.Context, in io.Reader, p *printer, ask askFunc) error {
	fmt.Fprintf(p.out, "\n%s\n", p.title("=== RAG Query Mode ==="))
	fmt.Fprintln(p.out, "Type 'exit' or 'quit' to end the session.")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(p.out, "\nEnter your question: ")
		if !scanner.Scan() {
			fmt.Fprintln(p.out)
			return scanner.Err()
		}
		q := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(q) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		res, err := ask(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(p.out, "Error: %v\n", err)
			continue
		}
		p.result(res)
	}
}

func printCategories(out io.Writer) {
	fmt.Fprintln(out, "Available file categories:")
	for _, name := range discovery.CategoryNames() {
		fmt.Fprintf(out, "  - %s: %s\n", name, strings.Join(discovery.Categories[name], ", "))
	}
	fmt.Fprintf(out, "\nDefault enabled categories: %s\n", strings.Join(discovery.DefaultCategories, ", "))
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

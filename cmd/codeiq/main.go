package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"

	"github.com/adityasoni99/code-iq/internal/flow"
	"github.com/adityasoni99/code-iq/internal/llm"
	"github.com/adityasoni99/code-iq/internal/nodes"
	"github.com/adityasoni99/code-iq/internal/tokens"
)

func main() {
	_ = godotenv.Load()

	app := &cli.Command{
		Name:  "codeiq",
		Usage: "Generate a beginner-friendly tutorial from a codebase",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "repo-url", Usage: "GitHub repository URL to crawl"},
			&cli.StringFlag{Name: "local-dir", Usage: "Local directory to crawl instead of a repository"},
			&cli.StringFlag{Name: "project-name", Usage: "Project name (derived from the source when omitted)"},
			&cli.StringFlag{Name: "output-dir", Value: "output", Usage: "Base directory for generated tutorials"},
			&cli.StringFlag{Name: "language", Value: "english", Usage: "Tutorial language"},
			&cli.IntFlag{Name: "max-abstractions", Value: 10, Usage: "Maximum number of abstractions to identify"},
			&cli.StringSliceFlag{Name: "include", Usage: "File patterns to include (repeatable)"},
			&cli.StringSliceFlag{Name: "exclude", Usage: "File patterns to exclude (repeatable)"},
			&cli.IntFlag{Name: "max-file-size", Value: 100_000, Usage: "Maximum file size in bytes"},
		},
		Action: run,
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	repoURL := cmd.String("repo-url")
	localDir := cmd.String("local-dir")
	if (repoURL == "") == (localDir == "") {
		return fmt.Errorf("exactly one of --repo-url and --local-dir is required")
	}

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is not set")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	gen := llm.NewGemini(apiKey, llm.WithLogger(logger))
	pipeline, err := nodes.NewPipeline(nodes.PipelineDeps{
		Generator: gen,
		Counter:   tokens.NewCounter(),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	st := flow.NewState()
	st.RepoURL = repoURL
	st.LocalDir = localDir
	st.ProjectName = cmd.String("project-name")
	st.GitHubToken = os.Getenv("GITHUB_TOKEN")
	st.OutputDir = cmd.String("output-dir")
	st.Language = cmd.String("language")
	st.IncludePatterns = cmd.StringSlice("include")
	st.ExcludePatterns = cmd.StringSlice("exclude")
	st.MaxFileSize = int64(cmd.Int("max-file-size"))
	st.MaxAbstractions = int(cmd.Int("max-abstractions"))

	if err := pipeline.Run(ctx, st); err != nil {
		return err
	}

	fmt.Printf("Tutorial written to %s\n", st.FinalOutputDir)
	return nil
}

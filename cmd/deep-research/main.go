package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mikeboe/deep-research/pkg/agent"
	"github.com/mikeboe/deep-research/pkg/archive"
	"github.com/mikeboe/deep-research/pkg/clients"
	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/database"
	"github.com/mikeboe/deep-research/pkg/embeddings"
	"github.com/mikeboe/deep-research/pkg/tools"
)

var (
	question   string
	outputPath string
	noArchive  bool
)

func main() {
	handler := slog.NewTextHandler(os.Stderr, nil)
	slog.SetDefault(slog.New(handler))

	// Missing .env is fine as long as the vars are set.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "deep-research",
		Short: "A terminal-based deep research agent",
		Long:  `deep-research decomposes a question into subqueries, researches them concurrently round by round, and synthesizes a cited report.`,
		Run: func(cmd *cobra.Command, args []string) {
			if !cmd.Flags().Changed("question") {
				reader := bufio.NewReader(os.Stdin)
				fmt.Fprint(os.Stderr, "Enter research question: ")
				input, _ := reader.ReadString('\n')
				question = strings.TrimSpace(input)
			}
			if question == "" {
				slog.Error("question cannot be empty")
				os.Exit(1)
			}

			if err := run(question); err != nil {
				slog.Error("research failed", "error", err)
				os.Exit(1)
			}
		},
	}

	rootCmd.Flags().StringVarP(&question, "question", "q", "", "The research question")
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the report to a file instead of stdout")
	rootCmd.Flags().BoolVar(&noArchive, "no-archive", false, "Skip archiving findings even when DATABASE_URL is set")

	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func run(question string) error {
	ctx := context.Background()
	cfg := config.Load()

	smart, err := clients.GoogleAI(ctx, cfg.GoogleApiKey, cfg.ReasoningModel)
	if err != nil {
		return fmt.Errorf("failed to create reasoning model: %w", err)
	}
	cheap, err := clients.GoogleAI(ctx, cfg.GoogleApiKey, cfg.FastModel)
	if err != nil {
		return fmt.Errorf("failed to create fast model: %w", err)
	}

	searcher := tools.NewTavilyClient(cfg.TavilyApiKey, cfg.SearchDepth, slog.Default())
	fetcher := tools.NewHTTPFetcher(slog.Default())

	opts := []agent.Option{
		agent.WithLogger(slog.Default()),
		agent.WithProgressSink(func(ev agent.ProgressEvent) {
			fmt.Fprintf(os.Stderr, "[round %d] %s: %s\n", ev.Round, ev.Stage, ev.Message)
		}),
	}

	embedder, err := embeddings.NewGoogleEmbedder(ctx, cfg.EmbeddingModel, cfg.GoogleApiKey)
	if err != nil {
		slog.Warn("embedder unavailable, context filter falls back to collection order", "error", err)
		embedder = nil
	}
	if embedder != nil {
		opts = append(opts, agent.WithEmbedder(embedder))
	}

	engine := agent.NewEngine(cfg.AgentConfig(), smart, cheap, searcher, fetcher, opts...)
	state := engine.Run(ctx, question)

	slog.Info("research finished",
		"status", state.Status,
		"rounds", state.Round,
		"sources", state.TotalSources(),
		"cost_usd", fmt.Sprintf("%.4f", state.CostUSD),
	)
	if state.StopReason != "" {
		slog.Info("stop reason", "reason", state.StopReason)
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, []byte(state.Report), 0o644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		slog.Info("report written", "path", outputPath)
	} else {
		fmt.Println(state.Report)
	}

	if !noArchive && embedder != nil && cfg.DatabaseURL != "" && state.TotalSources() > 0 {
		if err := archiveRun(ctx, cfg, embedder, state); err != nil {
			slog.Warn("failed to archive findings", "error", err)
		}
	}

	return nil
}

func archiveRun(ctx context.Context, cfg *config.Config, embedder *embeddings.GoogleEmbedder, state *agent.ResearchState) error {
	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	indexer := archive.NewIndexer(db, embedder, cfg.CollectionName, cfg.ChunkSize, cfg.ChunkOverlap, slog.Default())
	if err := indexer.EnsureSchema(ctx); err != nil {
		return err
	}

	runID := uuid.NewString()
	if err := indexer.IndexRun(ctx, runID, state); err != nil {
		return err
	}
	slog.Info("findings archived", "run_id", runID, "collection", cfg.CollectionName)
	return nil
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/finchat/internal/access"
	"github.com/ziadkadry99/finchat/internal/audit"
	"github.com/ziadkadry99/finchat/internal/auth"
	"github.com/ziadkadry99/finchat/internal/bots"
	"github.com/ziadkadry99/finchat/internal/chat"
	"github.com/ziadkadry99/finchat/internal/dashboard"
	"github.com/ziadkadry99/finchat/internal/gaps"
	"github.com/ziadkadry99/finchat/internal/ingest"
	"github.com/ziadkadry99/finchat/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the finchat HTTP server",
	Long: `Starts the finchat server with the REST API, the chat dashboard, and the
Slack and Teams webhook endpoints.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()

	// Embedder and vector store for retrieval.
	embedder, err := createEmbedderFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}

	store, err := createVectorStoreFromConfig(cfg, embedder)
	if err != nil {
		return fmt.Errorf("creating vector store: %w", err)
	}
	if err := store.Load(context.Background(), cfg.DataDir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not load vector index from %s: %v\n", cfg.DataDir, err)
		fmt.Fprintf(os.Stderr, "Answers will cite nothing until `finchat ingest` runs.\n")
	}

	pipeline, err := createPipelineFromConfig(cfg, store, logger)
	if err != nil {
		return err
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	users := auth.NewStore(database)
	docs := ingest.NewStore(database)
	auditStore := audit.NewStore(database)
	gapStore := gaps.NewStore(database)
	recorder := audit.NewRecorder(auditStore, logger)

	chatSvc := chat.NewService(chat.NewStore(database), pipeline, cfg.RAG.ChunkHistoryLimit, logger).
		WithGapRecorder(gapStore).
		WithAuditor(recorder)

	// Platform handlers are nil unless the matching credentials are set;
	// the router skips nil handlers.
	var slackHandler *bots.SlackHandler
	var teamsHandler *bots.TeamsHandler
	if cfg.Bots.Slack.Token != "" || cfg.Bots.Teams.WebhookURL != "" {
		processor := bots.NewProcessor(pipeline, access.Role(cfg.Bots.Role), logger).
			WithGapRecorder(gapStore).
			WithAuditor(recorder)
		gateway := bots.NewGateway(processor)
		if cfg.Bots.Slack.Token != "" {
			slackHandler = bots.NewSlackHandler(gateway, cfg.Bots.Slack.Token, cfg.Bots.Slack.SigningSecret, logger)
		}
		if cfg.Bots.Teams.WebhookURL != "" {
			teamsHandler = bots.NewTeamsHandler(gateway, cfg.Bots.Teams.WebhookURL, logger)
		}
	}

	port := cfg.Server.Port
	if servePort > 0 {
		port = servePort
	}

	srv := server.New(server.Config{
		Port:     port,
		AllowAll: cfg.Server.AllowAllOrigins,
	}, server.Deps{
		Users: users,
		Google: auth.GoogleConfig{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.Google.RedirectURL,
		},
		Chat:      chatSvc,
		Documents: docs,
		Audit:     auditStore,
		Gaps:      gapStore,
		Recorder:  recorder,
		Dashboard: dashboard.New(chatSvc, users, logger),
		Slack:     slackHandler,
		Teams:     teamsHandler,
	}, logger)

	// Graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		fmt.Fprintln(os.Stderr, "\nShutting down server...")
		srv.Shutdown(context.Background())
	}()

	fmt.Fprintf(os.Stderr, "finchat server v%s starting on port %d\n", Version, port)
	fmt.Fprintf(os.Stderr, "  Database:       %s\n", cfg.DBPath())
	fmt.Fprintf(os.Stderr, "  Corpus:         %s\n", cfg.CorpusDir)
	fmt.Fprintf(os.Stderr, "  Indexed chunks: %d\n", store.TotalCount())
	if existing, err := users.ListUsers(context.Background()); err == nil && len(existing) == 0 {
		fmt.Fprintln(os.Stderr, "  No users exist yet. Create one with `finchat users add`.")
	}

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/finchat/internal/ingest"
	mcpserver "github.com/ziadkadry99/finchat/internal/mcp"
	"github.com/ziadkadry99/finchat/internal/rag"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server for AI agent integration",
	Long: `Starts a Model Context Protocol (MCP) server on stdio, exposing the
company knowledge base to AI agents. Tool calls are answered with the
same role-scoped retrieval the chat server uses.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger()

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
			fmt.Fprintf(os.Stderr, "Search results will be empty. Run `finchat ingest` first.\n")
		}

		pipeline, err := createPipelineFromConfig(cfg, store, logger)
		if err != nil {
			return err
		}
		retriever := rag.NewRetriever(store, cfg.RAG.Params(), logger)

		database, err := openDatabase(cfg)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer database.Close()

		// Set version from the cmd package variable.
		mcpserver.Version = Version

		fmt.Fprintf(os.Stderr, "finchat MCP server started on stdio (indexed chunks=%d)\n", store.TotalCount())

		srv := mcpserver.NewServer(pipeline, retriever, ingest.NewStore(database))
		return srv.Serve()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

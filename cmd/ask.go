package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/finchat/internal/access"
	"github.com/ziadkadry99/finchat/internal/rag"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask the knowledge base a one-shot question",
	Long: `Answers a single question from the indexed corpus without starting the
server. Retrieval is scoped to the collections the given role may read.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().String("role", "employee", "access role to ask as: finance, marketing, hr, engineering, employee, c-level")
	askCmd.Flags().Bool("json", false, "output the answer as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	question := args[0]

	roleStr, _ := cmd.Flags().GetString("role")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	role, err := access.ParseRole(roleStr)
	if err != nil {
		return err
	}

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
	if err := store.Load(ctx, cfg.DataDir); err != nil {
		return fmt.Errorf("loading vector index from %s: %w\nRun `finchat ingest` first to build the index", cfg.DataDir, err)
	}

	if store.TotalCount() == 0 {
		fmt.Println("The corpus is not indexed yet. Run `finchat ingest` first.")
		return nil
	}

	pipeline, err := createPipelineFromConfig(cfg, store, logger)
	if err != nil {
		return err
	}

	answer, err := pipeline.Answer(ctx, rag.Request{Role: role, Message: question})
	if err != nil {
		return fmt.Errorf("answering failed: %w", err)
	}

	if jsonOutput {
		return printAnswerJSON(answer)
	}
	printAnswer(answer)
	return nil
}

type askResultJSON struct {
	Answer          string         `json:"answer"`
	StandaloneQuery string         `json:"standalone_query,omitempty"`
	Citations       []rag.Citation `json:"citations,omitempty"`
	Confidence      float64        `json:"confidence"`
	TokenCount      int            `json:"token_count"`
	NoContext       bool           `json:"no_context"`
	Degraded        bool           `json:"degraded,omitempty"`
}

func printAnswerJSON(a *rag.Answer) error {
	out := askResultJSON{
		Answer:          a.Text,
		StandaloneQuery: a.StandaloneQuery,
		Citations:       a.Citations,
		Confidence:      a.Confidence,
		TokenCount:      a.TokenCount,
		NoContext:       a.NoContext,
		Degraded:        a.Degraded,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printAnswer(a *rag.Answer) {
	fmt.Println(a.Text)

	if len(a.Citations) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for _, c := range a.Citations {
			fmt.Printf("  - %s (%s, %.0f%%)\n", c.DocumentName, c.Department, c.Score*100)
		}
	}

	fmt.Println()
	fmt.Printf("Confidence: %.0f%%\n", a.Confidence*100)
	if a.Degraded {
		fmt.Println("Note: some pipeline stages were unavailable; the answer may be incomplete.")
	}
}

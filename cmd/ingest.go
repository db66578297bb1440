package cmd

import (
	"fmt"
	"os"

	"github.com/hildam/rag-flow-go/biz/ingest"
	"github.com/hildam/rag-flow-go/biz/retrieval"
	"github.com/hildam/rag-flow-go/entity/conf"
	"github.com/hildam/rag-flow-go/repo/vectordb"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [documents.jsonl]",
	Short: "Embed split documents and write them to the knowledge base",
	Long: `Read one document per line ({"content": ..., "meta_data": {...}}), embed each
through the rate limited gateway and insert them into the knowledge table.
Documents whose embedding fails after all retries are kept with an empty vector.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		batch, _ := cmd.Flags().GetInt("batch")

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		docs, err := ingest.ReadJSONL(f)
		if err != nil {
			return err
		}

		a, err := newBase(cmd.Context(), conf.GetCfg())
		if err != nil {
			return err
		}
		defer a.close()

		stats, err := a.ingester(concurrency, batch).Run(cmd.Context(), docs)
		fmt.Printf("total = %d, embedded = %d, empty = %d, inserted = %d\n", stats.Total, stats.Embedded, stats.Empty, stats.Inserted)
		return err
	},
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Query the knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topK, _ := cmd.Flags().GetInt("top-k")
		threshold, _ := cmd.Flags().GetFloat64("threshold")

		cfg := conf.GetCfg()
		a, err := newBase(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.close()

		if threshold <= 0 {
			threshold = cfg.Retrieval.KBThreshold
		}
		r := retrieval.NewKnowledgeRetriever(a.retrieval, vectordb.CollectionKnowledge, topK, threshold)
		docs, err := r.Retrieve(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for i, d := range docs {
			fmt.Printf("%d. [%.3f] %s %v\n   %s\n", i+1, d.Score(), d.MetaData["category"], d.MetaData["title"], d.Content)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(searchCmd)

	ingestCmd.Flags().Int("concurrency", 4, "parallel embedding calls, still bounded by the rate limiter")
	ingestCmd.Flags().Int("batch", 100, "documents per insert batch")
	searchCmd.Flags().Int("top-k", 5, "number of results")
	searchCmd.Flags().Float64("threshold", 0, "minimum score, defaults to retrieval.kb_threshold")
}

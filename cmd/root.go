package cmd

import (
	"github.com/hildam/rag-flow-go/entity/conf"
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "ragflow",
	Short: "Multimodal RAG workflow engine",
	Long: `ragflow answers questions from long-term conversation memory, a multimodal
knowledge base and web search, with human review of low-confidence answers.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return conf.Init(cfgFile)
	},
}

// Execute 执行命令行
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", conf.DefaultPath, "config file")
}

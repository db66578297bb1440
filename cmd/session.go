package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hildam/rag-flow-go/entity/conf"
	"github.com/hildam/rag-flow-go/entity/consts"
	"github.com/hildam/rag-flow-go/entity/model"
	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume [session-id] [approve|reject]",
	Short: "Submit the review answer for an interrupted session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		answer, err := consts.ParseHumanAnswer(strings.ToLower(args[1]))
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), conf.GetCfg())
		if err != nil {
			return err
		}
		defer a.close()

		res, err := a.engine.Resume(cmd.Context(), args[0], answer)
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var recoverCmd = &cobra.Command{
	Use:   "recover [session-id]",
	Short: "Continue a turn that stopped mid-way from its last checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), conf.GetCfg())
		if err != nil {
			return err
		}
		defer a.close()

		res, err := a.engine.Recover(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

func printJSON(res *model.Result) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func init() {
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(recoverCmd)
}

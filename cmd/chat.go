package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/HildaM/logs/slog"
	"github.com/google/uuid"
	"github.com/hildam/rag-flow-go/agent"
	"github.com/hildam/rag-flow-go/entity/conf"
	"github.com/hildam/rag-flow-go/entity/consts"
	"github.com/hildam/rag-flow-go/entity/model"
	"github.com/hildam/rag-flow-go/repo/callback"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat in the console, prompting for review when an answer needs it",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		user, _ := cmd.Flags().GetString("user")
		session, _ := cmd.Flags().GetString("session")
		image, _ := cmd.Flags().GetString("image")
		if session == "" {
			session = uuid.New().String()
		}

		a, err := newApp(ctx, conf.GetCfg())
		if err != nil {
			return err
		}
		defer a.close()

		// 流式输出
		outChan := make(chan string, 64)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for out := range outChan {
				fmt.Print(out)
			}
		}()
		defer func() {
			close(outChan)
			<-done
		}()
		cb := agent.WithCallbacks(&callback.LoggerCallback{ID: session, Out: outChan})

		reader := bufio.NewReader(os.Stdin)
		for {
			fmt.Print("\n请输入你的问题： ")
			line, err := reader.ReadString('\n')
			if err != nil {
				return nil
			}
			text := strings.TrimSpace(line)
			if text == "" && image == "" {
				continue
			}

			res, err := a.engine.Run(ctx, agent.Turn{SessionID: session, User: user, Text: text, ImageURL: image}, cb)
			image = ""
			for err == nil && res.Interrupted {
				fmt.Printf("\n评估分数 %s，是否接受该回答 (approve/reject)： ", score(res))
				line, rerr := reader.ReadString('\n')
				if rerr != nil {
					return nil
				}
				answer, perr := consts.ParseHumanAnswer(strings.ToLower(strings.TrimSpace(line)))
				if perr != nil {
					fmt.Println(perr)
					continue
				}
				res, err = a.engine.Resume(ctx, session, answer, cb)
			}
			if err != nil {
				var invalid *model.InvalidInputError
				if errors.As(err, &invalid) {
					fmt.Println(invalid.Reason)
					continue
				}
				slog.Error("chat failed, session = %s, err = %+v", session, err)
				fmt.Println("出错了：", err)
				continue
			}
			fmt.Printf("\n回答：%s\n", res.Answer)
		}
	},
}

func score(res *model.Result) string {
	if res.EvaluateSource == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *res.EvaluateSource)
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().String("user", "default", "user name used to scope long-term memory")
	chatCmd.Flags().String("session", "", "session id, a new session when empty")
	chatCmd.Flags().String("image", "", "image url or local path sent with the first question")
}

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/freddiev4/rune/pkg/agent"
)

var (
	runAgent string
	runModel string
)

var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Run the agent once with a prompt and print the final response",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&runAgent, "agent", "", "agent to use (build, plan)")
	runCmd.Flags().StringVar(&runModel, "model", "", "model to use")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	h, err := newHarness(ctx, runAgent, runModel, nil)
	if err != nil {
		return err
	}
	defer h.close()

	prompt := strings.Join(args, " ")
	response, err := h.loop.RunWithNotify(ctx, prompt, func(turn agent.TurnResult) {
		for i, call := range turn.ToolCalls {
			status := "ok"
			if i < len(turn.ToolResults) && !turn.ToolResults[i].Success {
				status = "failed"
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "  [%s] %s\n", status, call.Name)
		}
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), response)
	fmt.Fprintln(cmd.ErrOrStderr(), h.loop.Session().Summary())
	return nil
}

package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/freddiev4/rune/pkg/agent"
)

var (
	chatAgent   string
	chatModel   string
	chatApprove bool
	chatResume  string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat session with the agent. Slash commands:

  /agent <name>   switch between build and plan
  /reset          start a fresh session
  /session        show session status
  /quit           save the session and exit`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatAgent, "agent", "", "agent to use (build, plan)")
	chatCmd.Flags().StringVar(&chatModel, "model", "", "model to use")
	chatCmd.Flags().BoolVar(&chatApprove, "approve", false, "ask before running gated tools")
	chatCmd.Flags().StringVar(&chatResume, "resume", "", "resume a saved session by id")
	rootCmd.AddCommand(chatCmd)
}

// terminalApprover prompts on the terminal for ask-level tools.
func terminalApprover(reader *bufio.Reader) func(toolName, callID string, args map[string]any) bool {
	return func(toolName, callID string, args map[string]any) bool {
		fmt.Printf("Allow tool %q? Args: %v [y/N] ", toolName, args)
		line, err := reader.ReadString('\n')
		if err != nil {
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	reader := bufio.NewReader(os.Stdin)

	var approver func(string, string, map[string]any) bool
	if chatApprove {
		approver = terminalApprover(reader)
	}

	h, err := newHarness(ctx, chatAgent, chatModel, approver)
	if err != nil {
		return err
	}
	defer h.close()

	if chatResume != "" {
		sess, err := h.store.Load(chatResume)
		if err != nil {
			return fmt.Errorf("resume session %s: %w", chatResume, err)
		}
		h.loop.SetSession(sess)
		fmt.Printf("Resumed %s\n", sess.Summary())
	}

	fmt.Printf("rune %s | agent: %s | model: %s | /quit to exit\n",
		version, h.loop.Definition().Name, h.cfg.Model)

	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			// EOF: save and leave like /quit.
			fmt.Println()
			return nil
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if done := handleSlashCommand(h, input); done {
				return nil
			}
			continue
		}

		response, err := h.loop.RunWithNotify(ctx, input, func(turn agent.TurnResult) {
			for i, call := range turn.ToolCalls {
				marker := "+"
				if i < len(turn.ToolResults) && !turn.ToolResults[i].Success {
					marker = "!"
				}
				fmt.Printf("  %s %s\n", marker, call.Name)
			}
		})
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		fmt.Println(response)
	}
}

// handleSlashCommand processes a command line. Returns true to exit.
func handleSlashCommand(h *harness, input string) bool {
	fields := strings.Fields(input)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/reset":
		h.loop.Reset()
		fmt.Println("Session reset.")
	case "/session":
		fmt.Println(h.loop.Session().Summary())
	case "/agent":
		if len(fields) < 2 {
			fmt.Printf("Current agent: %s\n", h.loop.Definition().Name)
			return false
		}
		if err := h.loop.SwitchAgent(fields[1]); err != nil {
			fmt.Printf("error: %v\n", err)
			return false
		}
		fmt.Printf("Switched to %s agent.\n", fields[1])
	default:
		fmt.Printf("Unknown command %s\n", fields[0])
	}
	return false
}

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jimeng-relay/storyvideo/internal/orchestrator"
)

const maxPromptTries = 3

// stdinDecisionMaker asks the operator how to recover from a failed attempt.
// Unreadable or repeatedly invalid input yields an empty decision, which the
// orchestrator treats as "use the automatic table".
func stdinDecisionMaker(in io.Reader, out io.Writer) orchestrator.DecisionMaker {
	reader := bufio.NewReader(in)
	return func(ctx context.Context, message string, hasAssets bool) orchestrator.RecoveryDecision {
		choices := []string{"retry"}
		if hasAssets {
			choices = append(choices, "retryWithoutAssets")
		}
		choices = append(choices, "storyboard", "cancel")

		fmt.Fprintf(out, "\nvideo generation failed: %s\n", message)
		for try := 0; try < maxPromptTries; try++ {
			if ctx.Err() != nil {
				return orchestrator.DecisionCancel
			}
			fmt.Fprintf(out, "choose [%s]: ", strings.Join(choices, "/"))
			line, err := reader.ReadString('\n')
			if d, ok := orchestrator.ParseDecision(line); ok {
				return d
			}
			if err != nil {
				return ""
			}
			fmt.Fprintf(out, "unrecognised choice %q\n", strings.TrimSpace(line))
		}
		return ""
	}
}

package refine

import (
	"fmt"
	"strings"
)

// SystemPrompt instructs the oracle how to refine.
const SystemPrompt = `You improve prompts that a student writing a thesis sends to AI assistants.
Keep the user's intent and language. Make the prompt specific: state the goal, the expected
output format, the constraints and any missing context the assistant will need.
Use the user's previous prompts to match their style and recurring needs.
Call submit_refinement exactly once with the refined prompt and a short reasoning.
If you cannot call tools, answer with a JSON object {"refinedPrompt": "...", "reasoning": "..."}.`

// BuildUserPrompt renders the prompt to refine and its history (newest first).
func BuildUserPrompt(prompt string, history []string) string {
	var sb strings.Builder
	if len(history) > 0 {
		sb.WriteString("Previous prompts (newest first):\n")
		for i, h := range history {
			sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, h))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Prompt to refine:\n")
	sb.WriteString(prompt)
	return sb.String()
}

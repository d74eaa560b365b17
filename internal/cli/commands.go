package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"memoire/internal/domain"
	"memoire/internal/tooling"
)

// ErrDegraded is returned by RunAsk when planning did not complete normally.
// The response has already been printed.
var ErrDegraded = errors.New("cli: request handled in degraded mode")

// RunAsk submits request to the agent and prints the response message followed
// by one line per action taken. With asJSON the AgentResponse is printed as JSON.
func RunAsk(ctx context.Context, rt *Runtime, request string, asJSON bool, out io.Writer) error {
	return printResponse(out, rt.Agent.ProcessUserRequest(ctx, domain.AgentRequest{UserRequest: request}), asJSON)
}

// printResponse writes resp as text or JSON and returns ErrDegraded when the
// response is degraded.
func printResponse(out io.Writer, resp domain.AgentResponse, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("cli: encode response: %w", err)
		}
	} else {
		fmt.Fprintln(out, resp.ResponseMessage)
		for _, a := range resp.ActionsTaken {
			fmt.Fprintln(out, "  "+formatAction(a))
		}
	}
	if resp.Degraded {
		return ErrDegraded
	}
	return nil
}

func formatAction(a domain.ToolInvocationResult) string {
	if !a.Output.Success {
		return fmt.Sprintf("[failed] %s: %s", a.ToolName, a.Output.Message)
	}
	if a.EntityID != "" {
		return fmt.Sprintf("[ok] %s %s", a.ToolName, a.EntityID)
	}
	return fmt.Sprintf("[ok] %s", a.ToolName)
}

// RunRefine refines prompt against the recent prompt log, records the
// result and prints the refined prompt and its reasoning.
func RunRefine(ctx context.Context, rt *Runtime, prompt string, out io.Writer) error {
	ref, id, err := rt.Agent.RefineFromLog(ctx, prompt)
	if err != nil && ref.RefinedPrompt == "" {
		return err
	}
	fmt.Fprintln(out, ref.RefinedPrompt)
	if ref.Reasoning != "" {
		fmt.Fprintf(out, "\n%s\n", ref.Reasoning)
	}
	if err != nil {
		rt.Logger.Warn("refinement not logged", "error", err)
		return nil
	}
	rt.Logger.Debug("refinement logged", "id", id)
	return nil
}

// RunTools prints the tool catalogue, one tool per line.
func RunTools(out io.Writer, verbose bool) error {
	tw := newTable(out)
	for _, def := range tooling.DefaultRegistry().Definitions() {
		fmt.Fprintf(tw, "%s\t%s\n", def.Name, firstSentence(def.Description))
		if verbose {
			fmt.Fprintf(tw, "\t%s\n", def.InputSchema)
		}
	}
	return tw.Flush()
}

// newTable returns the column writer shared by the listing commands.
func newTable(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
}

func firstSentence(s string) string {
	if i := strings.Index(s, ". "); i >= 0 {
		return s[:i+1]
	}
	return s
}

// RunPromptsList prints the most recent prompt log entries, newest first.
func RunPromptsList(ctx context.Context, rt *Runtime, limit int, out io.Writer) error {
	entries, err := rt.Prompts.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "no prompts logged")
		return nil
	}
	tw := newTable(out)
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04"),
			strings.Join(e.Tags, ","),
			e.OriginalPrompt,
			e.RefinedPrompt,
		)
	}
	return tw.Flush()
}

// RunPromptsLog records prompt in the prompt log without refining it and
// prints the new entry id. Tags are kept verbatim apart from surrounding
// whitespace; blank tags are dropped.
func RunPromptsLog(ctx context.Context, rt *Runtime, prompt string, tags []string, out io.Writer) error {
	all := []string{domain.TagManual}
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			all = append(all, tag)
		}
	}
	id, err := rt.Prompts.Append(ctx, domain.PromptLogEntry{
		OriginalPrompt: strings.TrimSpace(prompt),
		Tags:           all,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(out, id)
	return nil
}

package agent

import (
	"strings"

	"memoire/internal/domain"
)

// Synthesizer turns a draft message and invocation outcomes into the final
// reply. It is stateless and never returns an empty string.
type Synthesizer struct {
	msg messages
}

// NewSynthesizer returns a Synthesizer speaking lang ("fr" or "en").
func NewSynthesizer(lang string) *Synthesizer {
	return &Synthesizer{msg: catalogFor(lang)}
}

// Synthesize applies the fallback ladder: a non-blank draft is returned
// verbatim; with no results the reply asks for clarification; otherwise it
// summarises the success and failure counts. A degraded run appends a note
// to the count summary.
func (s *Synthesizer) Synthesize(draft string, results []domain.ToolInvocationResult, degraded bool) string {
	if d := strings.TrimSpace(draft); d != "" {
		return d
	}
	if len(results) == 0 {
		return s.msg.clarification
	}

	ok, failed := Count(results)
	var out string
	switch {
	case failed == 0:
		out = s.msg.success(ok)
	case ok == 0:
		out = s.msg.failure(failed)
	default:
		out = s.msg.partial(ok, failed)
	}
	if degraded {
		out += s.msg.degradedNote
	}
	return out
}

// Count returns the number of successful and failed results.
func Count(results []domain.ToolInvocationResult) (succeeded, failed int) {
	for _, r := range results {
		if r.Output.Success {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

package workflow

import (
	"encoding/json"
	"errors"
	"strings"
)

// agentResult is the structured result the agent emits as its final
// stdout line.
type agentResult struct {
	SessionID string          `json:"session_id"`
	CostUSD   float64         `json:"cost_usd"`
	Status    string          `json:"status"`
	Questions []string        `json:"questions,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
}

const (
	resultCompleted  = "completed"
	resultNeedsInput = "needs_input"
)

var errNoResult = errors.New("no structured result in agent output")

// needsInput reports whether the result maps to waiting_for_input.
func (r *agentResult) needsInput() bool {
	return r.Status == resultNeedsInput || len(r.Questions) > 0
}

// parseResult extracts the last well-formed result object from captured
// stdout. The agent may write arbitrary text before it; only the final
// JSON line counts.
func parseResult(stdout []byte) (*agentResult, error) {
	lines := strings.Split(string(stdout), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var r agentResult
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			continue
		}
		if r.SessionID == "" && r.Status == "" {
			continue
		}
		return &r, nil
	}
	return nil, errNoResult
}

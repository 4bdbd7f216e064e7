package runner

import (
	"time"

	"github.com/jwebster45206/npc-engine/pkg/protocol"
)

// NewPlayerPrompt switches the rest of the suite to a fresh player address.
const NewPlayerPrompt = "NEW_PLAYER"

// Step kinds
const (
	StepPlayer = "player"
	StepChat   = "chat"
	StepSetup  = "setup"
)

// TestSuite is one scripted conversation, or a sequence of other case files.
type TestSuite struct {
	Name  string     `json:"name"`
	NPC   string     `json:"npc,omitempty"` // overrides the runner's NPC address
	Steps []TestStep `json:"steps,omitempty"`
	Cases []string   `json:"cases,omitempty"`
}

// IsSequence returns true if this is a suite that sequences other cases
func (ts *TestSuite) IsSequence() bool {
	return len(ts.Cases) > 0
}

// TestStep sends one message and checks the reply. Kind defaults to a
// plain player message; setup steps read Setup instead of UserPrompt.
type TestStep struct {
	Name         string                 `json:"name,omitempty"`
	Kind         string                 `json:"kind,omitempty"`
	UserPrompt   string                 `json:"user_prompt,omitempty"`
	Setup        *protocol.SetupMessage `json:"setup,omitempty"`
	Expectations Expectations           `json:"expect"`
}

// Expectations checked against the reply text
type Expectations struct {
	Response            *string  `json:"response,omitempty"`
	ResponseContains    []string `json:"response_contains,omitempty"`
	ResponseNotContains []string `json:"response_not_contains,omitempty"`
	ResponseRegex       string   `json:"response_regex,omitempty"`
	ResponseMinLength   *int     `json:"response_min_length,omitempty"`
	ResponseMaxLength   *int     `json:"response_max_length,omitempty"`
}

// TestResult contains the outcome of running a test step
type TestResult struct {
	StepName     string
	Success      bool
	Error        error
	Duration     time.Duration
	ResponseText string
	IsPlayerSwap bool // NEW_PLAYER steps do not count toward pass/fail
}

// TestJob represents a test suite to be executed
type TestJob struct {
	Name     string
	Suite    TestSuite
	CaseFile string
}

// TestRunResult contains the results of running an entire test suite
type TestRunResult struct {
	Job      TestJob
	Results  []TestResult
	Error    error
	Duration time.Duration
	Players  []string // player addresses used, in order
}

package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/npc-engine/internal/player"
	"github.com/jwebster45206/npc-engine/pkg/protocol"
)

type ErrorHandlingMode string

const ErrorHandlingExit ErrorHandlingMode = "exit"
const ErrorHandlingContinue ErrorHandlingMode = "continue"

// Talker is the player side of a conversation; *player.Client satisfies it.
type Talker interface {
	Setup(ctx context.Context, msg protocol.SetupMessage) (string, error)
	Send(ctx context.Context, text string) (string, error)
	SendChat(ctx context.Context, text string) (string, error)
}

var _ Talker = (*player.Client)(nil)

// ClientFactory opens a conversation from a player address to an NPC.
type ClientFactory func(playerAddress, npcAddress string) Talker

// Runner executes scripted conversations against a running NPC
type Runner struct {
	NPC               string
	NewClient         ClientFactory
	Logger            func(format string, args ...interface{})
	ErrorHandlingMode ErrorHandlingMode
}

// NewRunner creates a new test runner
func NewRunner(npc string, factory ClientFactory) *Runner {
	return &Runner{
		NPC:               npc,
		NewClient:         factory,
		Logger:            func(string, ...interface{}) {},
		ErrorHandlingMode: ErrorHandlingContinue,
	}
}

// LoadTestSuite loads a test suite from a JSON file
func LoadTestSuite(filename string) (TestSuite, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return TestSuite{}, fmt.Errorf("failed to read test file %s: %w", filename, err)
	}

	var suite TestSuite
	if err := json.Unmarshal(content, &suite); err != nil {
		return TestSuite{}, fmt.Errorf("failed to parse JSON in %s: %w", filename, err)
	}

	return suite, nil
}

// LoadTestSuiteWithExpansion loads a test suite and expands sequences into
// the suites they reference, relative to casesDir.
func LoadTestSuiteWithExpansion(filename string, casesDir string) ([]TestJob, error) {
	suite, err := LoadTestSuite(filename)
	if err != nil {
		return nil, err
	}

	if !suite.IsSequence() {
		return []TestJob{{
			Name:     suite.Name,
			Suite:    suite,
			CaseFile: filename,
		}}, nil
	}

	var jobs []TestJob
	for _, caseFile := range suite.Cases {
		subJobs, err := LoadTestSuiteWithExpansion(filepath.Join(casesDir, caseFile), casesDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load case '%s' referenced by sequence '%s': %w", caseFile, suite.Name, err)
		}
		jobs = append(jobs, subJobs...)
	}

	return jobs, nil
}

// RunSuite executes a complete test suite from a fresh player address
func (r *Runner) RunSuite(ctx context.Context, suite TestSuite) (TestRunResult, error) {
	start := time.Now()
	result := TestRunResult{
		Job:     TestJob{Name: suite.Name, Suite: suite},
		Results: make([]TestResult, 0, len(suite.Steps)),
	}

	npc := r.NPC
	if suite.NPC != "" {
		npc = suite.NPC
	}

	newPlayer := func() Talker {
		address := "itest-" + uuid.NewString()[:8]
		result.Players = append(result.Players, address)
		return r.NewClient(address, npc)
	}
	client := newPlayer()

	for i, step := range suite.Steps {
		r.Logger("    [%d/%d] Running step: %s", i+1, len(suite.Steps), step.Name)

		if step.UserPrompt == NewPlayerPrompt {
			client = newPlayer()
			result.Results = append(result.Results, TestResult{StepName: step.Name, Success: true, IsPlayerSwap: true})
			continue
		}

		stepResult := r.runStep(ctx, client, step)
		result.Results = append(result.Results, stepResult)

		if stepResult.Error != nil {
			r.Logger("    [%d/%d] ✗ %s: %v", i+1, len(suite.Steps), step.Name, stepResult.Error)
			if result.Error == nil {
				result.Error = fmt.Errorf("step %d (%s) failed: %w", i, step.Name, stepResult.Error)
			}
			if r.ErrorHandlingMode == ErrorHandlingExit {
				break
			}
			continue
		}

		r.Logger("    [%d/%d] ✓ %s (%v)", i+1, len(suite.Steps), step.Name, stepResult.Duration)
	}

	result.Duration = time.Since(start)
	return result, result.Error
}

// runStep executes a step, retrying once when the reply timed out
func (r *Runner) runStep(ctx context.Context, client Talker, step TestStep) TestResult {
	for attempt := 1; attempt <= 2; attempt++ {
		result := r.executeStep(ctx, client, step)
		if result.Success || result.ResponseText != player.TimeoutReply || attempt == 2 {
			return result
		}
		r.Logger("    Timeout detected, retrying step: %s", step.Name)
	}
	return TestResult{StepName: step.Name, Error: fmt.Errorf("unexpected error in retry logic")}
}

func (r *Runner) executeStep(ctx context.Context, client Talker, step TestStep) TestResult {
	start := time.Now()
	result := TestResult{StepName: step.Name}

	var (
		reply string
		err   error
	)
	switch step.Kind {
	case StepSetup:
		if step.Setup == nil {
			result.Error = fmt.Errorf("setup step has no setup message")
			return result
		}
		reply, err = client.Setup(ctx, *step.Setup)
	case StepChat:
		reply, err = client.SendChat(ctx, step.UserPrompt)
	case StepPlayer, "":
		reply, err = client.Send(ctx, step.UserPrompt)
	default:
		result.Error = fmt.Errorf("unknown step kind %q", step.Kind)
		return result
	}
	result.Duration = time.Since(start)
	result.ResponseText = reply

	if err != nil {
		result.Error = fmt.Errorf("exchange failed: %w", err)
		return result
	}

	if err := CheckExpectations(step.Expectations, reply); err != nil {
		result.Error = fmt.Errorf("expectation failed: %w", err)
		return result
	}

	result.Success = true
	return result
}

// CheckExpectations validates a reply against exp. Substring checks ignore
// case; the regex and exact match do not.
func CheckExpectations(exp Expectations, responseText string) error {
	if exp.Response != nil && responseText != *exp.Response {
		return fmt.Errorf("expected response %q, got %q", *exp.Response, responseText)
	}

	lowerResponse := strings.ToLower(responseText)
	for _, expectedText := range exp.ResponseContains {
		if !strings.Contains(lowerResponse, strings.ToLower(expectedText)) {
			return fmt.Errorf("expected response to contain '%s', but it didn't", expectedText)
		}
	}
	for _, unexpectedText := range exp.ResponseNotContains {
		if strings.Contains(lowerResponse, strings.ToLower(unexpectedText)) {
			return fmt.Errorf("expected response to NOT contain '%s', but it did", unexpectedText)
		}
	}

	if exp.ResponseRegex != "" {
		matched, err := regexp.MatchString(exp.ResponseRegex, responseText)
		if err != nil {
			return fmt.Errorf("invalid regex pattern: %w", err)
		}
		if !matched {
			return fmt.Errorf("response didn't match regex pattern: %s", exp.ResponseRegex)
		}
	}

	if exp.ResponseMinLength != nil && len(responseText) < *exp.ResponseMinLength {
		return fmt.Errorf("expected response length >= %d, got %d", *exp.ResponseMinLength, len(responseText))
	}
	if exp.ResponseMaxLength != nil && len(responseText) > *exp.ResponseMaxLength {
		return fmt.Errorf("expected response length <= %d, got %d", *exp.ResponseMaxLength, len(responseText))
	}

	return nil
}

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ParameterType selects the SSM parameter type of a step.
type ParameterType int

const (
	// ParamSecureString is encrypted at rest with the account's default KMS key.
	ParamSecureString ParameterType = iota
	// ParamString is stored in plaintext.
	ParamString
)

// BootstrapStep is one parameter collected from the operator.
type BootstrapStep struct {
	HumanLabel string

	// SSMCategoryKey becomes /{env}/meteonotify/{SSMCategoryKey}.
	SSMCategoryKey string

	// EnvVar is the configuration variable the parameter feeds. The deployed
	// function sets EnvVar+"_SSM_PARAM" to the parameter path.
	EnvVar string

	ParamType ParameterType
	Prompt    string

	// ValidateFn checks raw operator input. Nil accepts anything.
	ValidateFn func(ctx context.Context, input string) ValidationResult

	// Transform converts validated input into the stored value. Nil stores
	// the input as-is.
	Transform func(input string) (string, error)

	// IsSecret masks input on a terminal.
	IsSecret bool

	// Optional steps are skipped on empty input without confirmation.
	Optional bool
}

// maxRetries bounds validation attempts per step.
const maxRetries = 5

// errSkipped is returned by promptAndValidate when the operator skips a step.
var errSkipped = errors.New("parameter skipped by operator")

// BuildInventory returns the ordered list of parameters the dispatcher reads.
func BuildInventory(v *Validator) []BootstrapStep {
	return []BootstrapStep{
		{
			HumanLabel:     "Firebase service account",
			SSMCategoryKey: "identity/firebase_service_account",
			EnvVar:         "FIREBASE_SERVICE_ACCOUNT_KEY",
			ParamType:      ParamSecureString,
			Prompt: `1. Open Firebase Console > Project settings > Service accounts.
   2. Click "Generate new private key" and save the JSON file.
   3. Enter the path to the downloaded file:`,
			ValidateFn: v.ValidateServiceAccountFile,
			Transform:  v.LoadServiceAccount,
		},
		{
			HumanLabel:     "Resend API key",
			SSMCategoryKey: "email/resend_api_key",
			EnvVar:         "RESEND_API_KEY",
			ParamType:      ParamSecureString,
			Prompt: `1. Go to Resend > API Keys and create a key (sending access is enough).
   2. Paste it here (re_...):`,
			ValidateFn: v.ValidateResendKey,
			IsSecret:   true,
		},
		{
			HumanLabel:     "Sender address (optional)",
			SSMCategoryKey: "email/from_address",
			EnvVar:         "EMAIL_FROM_ADDRESS",
			ParamType:      ParamString,
			Prompt:         `Enter the verified sender address (or press Enter to keep onboarding@resend.dev):`,
			ValidateFn:     v.ValidateEmail,
			Optional:       true,
		},
		{
			HumanLabel:     "Site URL (optional)",
			SSMCategoryKey: "site/url",
			EnvVar:         "SITE_URL",
			ParamType:      ParamString,
			Prompt:         `Enter the public site URL linked from every email (or press Enter to keep https://meteoburkina.bf/):`,
			ValidateFn:     v.ValidateURL,
			Optional:       true,
		},
	}
}

// BootstrapRunner runs the inventory against SSM.
type BootstrapRunner struct {
	SSM    *SSMManager
	Steps  []BootstrapStep
	Stdin  io.Reader
	Stderr io.Writer

	// scanner is shared so buffered input is not lost between prompts.
	scanner *bufio.Scanner
}

// NewBootstrapRunner creates a BootstrapRunner with production dependencies.
func NewBootstrapRunner(bctx *BootstrapContext) *BootstrapRunner {
	return &BootstrapRunner{
		SSM:    NewSSMManager(bctx),
		Steps:  BuildInventory(NewValidator()),
		Stdin:  os.Stdin,
		Stderr: os.Stderr,
	}
}

// stepResult records the outcome of one step.
type stepResult struct {
	Step   BootstrapStep
	Action string // "written", "overwritten", "skipped"
	Path   string
}

// Run processes every step in order and prints a summary.
func (r *BootstrapRunner) Run(ctx context.Context) error {
	results := make([]stepResult, 0, len(r.Steps))

	for i, step := range r.Steps {
		fmt.Fprintf(r.Stderr, "\n[%d/%d] %s\n", i+1, len(r.Steps), step.HumanLabel)

		result, err := r.processStep(ctx, step)
		if err != nil {
			return fmt.Errorf("step %q failed: %w", step.HumanLabel, err)
		}
		results = append(results, result)
	}

	r.printSummary(results)
	return nil
}

// processStep checks existence, obtains and validates the value, and writes
// it to SSM.
func (r *BootstrapRunner) processStep(ctx context.Context, step BootstrapStep) (stepResult, error) {
	path := r.SSM.SSMPath(step.SSMCategoryKey)
	result := stepResult{Step: step, Path: path}

	exists, err := r.SSM.ParameterExists(ctx, path)
	if err != nil {
		return result, fmt.Errorf("checking existence of %s: %w", path, err)
	}

	if exists {
		fmt.Fprintf(r.Stderr, "  Parameter already exists: %s\n", path)
		choice, err := r.promptChoice("  [S]kip or [O]verwrite? ", "overwrite")
		if err != nil {
			return result, fmt.Errorf("reading skip/overwrite choice: %w", err)
		}
		if choice == "skip" {
			fmt.Fprintf(r.Stderr, "  Skipped.\n")
			result.Action = "skipped"
			return result, nil
		}
	}

	value, err := r.promptAndValidate(ctx, step)
	if errors.Is(err, errSkipped) {
		fmt.Fprintf(r.Stderr, "  Skipped.\n")
		result.Action = "skipped"
		return result, nil
	}
	if err != nil {
		return result, err
	}

	if step.Transform != nil {
		if value, err = step.Transform(value); err != nil {
			return result, fmt.Errorf("preparing %s: %w", step.HumanLabel, err)
		}
	}

	if step.ParamType == ParamSecureString {
		err = r.SSM.PutSecret(ctx, path, value, exists)
	} else {
		err = r.SSM.PutString(ctx, path, value)
	}
	if err != nil {
		return result, err
	}

	result.Action = "written"
	if exists {
		result.Action = "overwritten"
	}
	fmt.Fprintf(r.Stderr, "  Stored: %s\n", path)
	return result, nil
}

// promptAndValidate reads input until it validates, up to maxRetries
// attempts. Empty input on a required step offers to skip or retry.
func (r *BootstrapRunner) promptAndValidate(ctx context.Context, step BootstrapStep) (string, error) {
	fmt.Fprintf(r.Stderr, "\n  %s\n\n", step.Prompt)

	for attempt := 1; attempt <= maxRetries; attempt++ {
		var (
			input string
			err   error
		)
		if step.IsSecret {
			input, err = r.readSecretInput("  > ")
		} else {
			input, err = r.readInput("  > ")
		}
		if err != nil {
			return "", fmt.Errorf("reading input for %s: %w", step.HumanLabel, err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			if step.Optional {
				return "", errSkipped
			}
			choice, err := r.promptChoice("  No input received. [S]kip this parameter or [R]etry? ", "retry")
			if err != nil {
				return "", fmt.Errorf("reading skip/retry choice for %s: %w", step.HumanLabel, err)
			}
			if choice == "skip" {
				return "", errSkipped
			}
			attempt--
			continue
		}

		if step.IsSecret {
			fmt.Fprintf(r.Stderr, "  Received %d chars.\n", len(input))
		}

		if step.ValidateFn != nil {
			vr := step.ValidateFn(ctx, input)
			if !vr.Valid {
				fmt.Fprintf(r.Stderr, "  Validation failed: %s\n", vr.Message)
				if attempt < maxRetries {
					fmt.Fprintf(r.Stderr, "  Try again (%d/%d).\n", attempt, maxRetries)
				}
				continue
			}
			fmt.Fprintf(r.Stderr, "  Validated: %s\n", vr.Message)
		}

		return input, nil
	}

	return "", fmt.Errorf("maximum retries (%d) exceeded for %s", maxRetries, step.HumanLabel)
}

// promptChoice asks until the operator answers "s"/"skip" or the first
// letter (or full word) of alternative. It returns "skip" or alternative.
func (r *BootstrapRunner) promptChoice(prompt, alternative string) (string, error) {
	for {
		fmt.Fprint(r.Stderr, prompt)

		line, err := r.scanLine()
		if err != nil {
			return "", err
		}

		switch choice := strings.ToLower(strings.TrimSpace(line)); choice {
		case "s", "skip":
			return "skip", nil
		case alternative[:1], alternative:
			return alternative, nil
		default:
			fmt.Fprintf(r.Stderr, "  Please enter 'S' to skip or '%s' to %s.\n", strings.ToUpper(alternative[:1]), alternative)
		}
	}
}

func (r *BootstrapRunner) scanLine() (string, error) {
	if r.scanner == nil {
		r.scanner = bufio.NewScanner(r.Stdin)
		// Pasted service account JSON can exceed the default 64KB token.
		r.scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	}
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}

func (r *BootstrapRunner) readInput(prompt string) (string, error) {
	fmt.Fprint(r.Stderr, prompt)
	return r.scanLine()
}

// readSecretInput disables echo when stdin is a terminal and falls back to
// line reading otherwise.
func (r *BootstrapRunner) readSecretInput(prompt string) (string, error) {
	fmt.Fprint(r.Stderr, prompt)

	if f, ok := r.Stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(r.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading secret input: %w", err)
		}
		return string(secret), nil
	}

	return r.scanLine()
}

// printSummary lists every step's action and the *_SSM_PARAM variables to
// set on the deployed function.
func (r *BootstrapRunner) printSummary(results []stepResult) {
	fmt.Fprintf(r.Stderr, "\n============================================================\n")
	fmt.Fprintf(r.Stderr, "  Bootstrap Summary\n")
	fmt.Fprintf(r.Stderr, "============================================================\n")

	counts := map[string]int{}
	for _, res := range results {
		counts[res.Action]++
		fmt.Fprintf(r.Stderr, "  %-14s %s\n", "["+strings.ToUpper(res.Action)+"]", res.Step.HumanLabel)
	}

	fmt.Fprintf(r.Stderr, "------------------------------------------------------------\n")
	fmt.Fprintf(r.Stderr, "  Written: %d | Overwritten: %d | Skipped: %d\n",
		counts["written"], counts["overwritten"], counts["skipped"])
	fmt.Fprintf(r.Stderr, "============================================================\n\n")

	fmt.Fprintf(r.Stderr, "  Function environment:\n")
	for _, res := range results {
		if res.Action == "skipped" {
			continue
		}
		fmt.Fprintf(r.Stderr, "    %s_SSM_PARAM=%s\n", res.Step.EnvVar, res.Path)
	}
	fmt.Fprintln(r.Stderr)
}

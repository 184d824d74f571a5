package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// localDefaults are written after the SSM values when IncludeLocalDefaults
// is set, so the exported file runs the dispatcher locally out of the box.
var localDefaults = map[string]string{
	"APP_ENV":        "local",
	"LOG_LEVEL":      "debug",
	"PORT":           "8080",
	"EMAIL_PROVIDER": "resend",
	"DISPATCH_MODE":  "to",
}

// ExportEnvConfig controls ExportEnvFile.
type ExportEnvConfig struct {
	OutputPath string
	SSM        *SSMManager
	Steps      []BootstrapStep
	Stderr     io.Writer

	IncludeLocalDefaults bool
}

// ExportEnvFile reads every step's parameter back from SSM and writes a
// dotenv file readable by godotenv. Missing parameters are left out. The
// file is created with 0600 permissions since it holds decrypted secrets.
func ExportEnvFile(ctx context.Context, cfg ExportEnvConfig) error {
	if cfg.OutputPath == "" {
		return fmt.Errorf("output path must not be empty")
	}

	var b strings.Builder
	b.WriteString("# Generated by cmd/ops/bootstrap. Contains secrets: do not commit.\n")

	for _, step := range cfg.Steps {
		path := cfg.SSM.SSMPath(step.SSMCategoryKey)

		value, err := cfg.SSM.GetParameterValue(ctx, path, step.ParamType == ParamSecureString)
		if err != nil {
			var notFound *ssmtypes.ParameterNotFound
			if errors.As(err, &notFound) {
				fmt.Fprintf(cfg.Stderr, "  Not set, omitted: %s\n", path)
				continue
			}
			return err
		}
		fmt.Fprintf(&b, "%s=%s\n", step.EnvVar, quoteEnvValue(value))
	}

	if cfg.IncludeLocalDefaults {
		b.WriteString("\n# Local development defaults\n")
		keys := make([]string, 0, len(localDefaults))
		for k := range localDefaults {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s=%s\n", k, localDefaults[k])
		}
	}

	if err := os.WriteFile(cfg.OutputPath, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", cfg.OutputPath, err)
	}
	return nil
}

// quoteEnvValue quotes values that godotenv would otherwise split or
// unescape. Single quotes keep JSON escape sequences literal; values that
// contain a single quote are double-quoted with backslashes escaped.
func quoteEnvValue(v string) string {
	if !strings.ContainsAny(v, " #\"'\\{}\n") {
		return v
	}
	if !strings.Contains(v, "'") {
		return "'" + v + "'"
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(v) + `"`
}

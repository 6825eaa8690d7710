package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/coordtest/internal/config"
)

// ScriptsPackage holds TestScripts, the datadriven test that runs script
// files. It accepts -scripts, -wait-timeout and datadriven's -rewrite.
const ScriptsPackage = "github.com/roach88/coordtest/internal/harness"

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Config  string // path to a YAML config file
	Rewrite bool   // rewrite expectations in place
	Filter  string // regexp matched against script file names
}

// goTest runs the go tool with args. env is appended to the environment.
var goTest = func(ctx context.Context, args, env []string, stdout, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, "go", args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [path]",
		Short: "Run script files",
		Long: `Run script files, each against a fresh coordinator.

The path may name a file or a directory, which is walked recursively.
Without a path, the scripts directory from the config is used. Scripts run
as subtests of TestScripts through "go test", so run this from within the
module; with --rewrite, datadriven rewrites mismatched expectations in place.

Exit codes:
  0 - All scripts passed
  1 - A script mismatched or halted on a fatal error
  2 - Command error (missing path, invalid config, etc.)

Examples:
  coordtest run internal/harness/testdata/scripts
  coordtest run --filter "wait" internal/harness/testdata/scripts
  coordtest run --rewrite internal/harness/testdata/scripts/basic.txt
  coordtest run --config coordtest.yaml --format json`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 {
				return NewExitError(ExitCommandError, fmt.Sprintf("run takes at most one path, got %d", len(args)))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScripts(cmd.Context(), opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to a YAML config file")
	cmd.Flags().BoolVar(&opts.Rewrite, "rewrite", false, "rewrite expected output in place")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "run only scripts whose file name matches this regexp")

	return cmd
}

func runScripts(ctx context.Context, opts *RunOptions, args []string, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Verbose {
		cfg.Verbose = true
	}

	target := cfg.Scripts
	if len(args) == 1 {
		target = args[0]
	}
	scripts, err := filepath.Abs(target)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid script path", err)
	}
	if _, err := os.Stat(scripts); err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("script path not found: %s", target), err)
	}

	goArgs, err := goTestArgs(opts, cfg, scripts)
	if err != nil {
		return err
	}

	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   cfg.Verbose,
	}
	out.VerboseLog("running go %s", strings.Join(goArgs, " "))

	var env []string
	if cfg.Verbose {
		env = append(env, config.EnvVerbose+"=1", config.EnvLogLevel+"="+cfg.LogLevel)
	}

	err = goTest(ctx, goArgs, env, cmd.OutOrStdout(), cmd.ErrOrStderr())
	var exited interface{ ExitCode() int }
	switch {
	case err == nil:
		return nil
	case errors.As(err, &exited):
		return WrapExitError(ExitFailure, "scripts failed", err)
	default:
		return WrapExitError(ExitCommandError, "failed to run go test", err)
	}
}

// goTestArgs builds the go test invocation that runs the scripts at path.
// Flags after -args go to the test binary.
func goTestArgs(opts *RunOptions, cfg config.Config, path string) ([]string, error) {
	run := "^TestScripts$"
	if opts.Filter != "" {
		if _, err := regexp.Compile(opts.Filter); err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid filter pattern", err)
		}
		run += "/" + opts.Filter
	}

	args := []string{"test", ScriptsPackage, "-count=1", "-run", run}
	if cfg.Verbose {
		args = append(args, "-v")
	}
	if opts.Format == "json" {
		args = append(args, "-json")
	}
	args = append(args, "-args", "-scripts="+path, "-wait-timeout="+cfg.WaitTimeout.String())
	if opts.Rewrite {
		args = append(args, "-rewrite")
	}
	return args, nil
}

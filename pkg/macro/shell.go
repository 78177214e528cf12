package macro

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/ethpandaops/queryoor/pkg/benchmark"
	"github.com/ethpandaops/queryoor/pkg/config"
	"github.com/ethpandaops/queryoor/pkg/datasource"
	"github.com/sirupsen/logrus"
)

// Compile-time interface check.
var _ Driver = (*ShellDriver)(nil)

// ShellDriver runs macros defined with a shell command through bash.
// Benchmark variables are exported to the command's environment.
type ShellDriver struct {
	log  logrus.FieldLogger
	defs map[string]config.MacroConfig
}

// NewShellDriver creates a new ShellDriver.
func NewShellDriver(
	log logrus.FieldLogger,
	defs map[string]config.MacroConfig,
) *ShellDriver {
	return &ShellDriver{
		log:  log.WithField("component", "shell-macro"),
		defs: defs,
	}
}

// CanExecute implements Driver.
func (d *ShellDriver) CanExecute(name string) bool {
	def, ok := d.defs[name]

	return ok && def.Command != ""
}

// Run implements Driver.
func (d *ShellDriver) Run(
	ctx context.Context,
	name string,
	b *benchmark.Benchmark,
	_ datasource.Conn,
) error {
	def := d.defs[name]

	cmd := exec.CommandContext(ctx, "bash", "-c", def.Command)
	cmd.Env = append(os.Environ(), environment(b)...)

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	log := d.log.WithField("macro", name)
	if out := strings.TrimSpace(stdout.String()); out != "" {
		log.WithField("stdout", out).Debug("Macro output")
	}

	if out := strings.TrimSpace(stderr.String()); out != "" {
		log.WithField("stderr", out).Debug("Macro error output")
	}

	if err != nil {
		return fmt.Errorf("running %q: %w: %s", def.Command, err, strings.TrimSpace(stderr.String()))
	}

	return nil
}

// environment returns the benchmark variables as KEY=value pairs.
func environment(b *benchmark.Benchmark) []string {
	if b == nil {
		return nil
	}

	env := make([]string, 0, len(b.Variables)+2)
	env = append(env,
		"BENCHMARK_NAME="+b.Name,
		"BENCHMARK_SEQUENCE_ID="+b.SequenceID,
	)

	for k, v := range b.Variables {
		env = append(env, k+"="+v)
	}

	return env
}

package runner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slate-core/internal/domain"
	"slate-core/internal/infra/logger"
)

// fakeCLI writes an executable shell script that stands in for the model CLI.
func fakeCLI(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fakecli")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o700))
	return path
}

const listFixture = `cat <<'EOF'
NAME                ID              SIZE      MODIFIED
slate-coder:latest  3b1c29ab        4.7 GB    2 days ago
slate-planner:7b    77aa01ff        3.8 GB    5 days ago
slate-fast:latest   9c0d11ee        1.1 GB    5 days ago
EOF`

func TestListModelsParsesTable(t *testing.T) {
	cmd := fakeCLI(t, listFixture)
	c := New(Options{Command: cmd}, logger.Discard())

	models, err := c.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"slate-coder", "slate-planner", "slate-fast"}, models)
}

func TestHasModel(t *testing.T) {
	cmd := fakeCLI(t, listFixture)
	c := New(Options{Command: cmd}, logger.Discard())

	ctx := context.Background()
	assert.True(t, c.HasModel(ctx, "slate-coder"))
	assert.False(t, c.HasModel(ctx, "unknown-model"))
}

func TestHasModelCLIFailure(t *testing.T) {
	c := New(Options{Command: "/no/such/binary"}, logger.Discard())
	assert.False(t, c.HasModel(context.Background(), "slate-coder"))
}

func TestInvokeReturnsTrimmedStdout(t *testing.T) {
	cmd := fakeCLI(t, `echo "  generated answer  "`)
	c := New(Options{Command: cmd}, logger.Discard())

	out, err := c.Invoke(context.Background(), "slate-coder", "implement it")
	require.NoError(t, err)
	assert.Equal(t, "generated answer", out)
}

func TestInvokeSubprocessFailureIncludesStderr(t *testing.T) {
	cmd := fakeCLI(t, `echo "model not found" >&2; exit 1`)
	c := New(Options{Command: cmd}, logger.Discard())

	_, err := c.Invoke(context.Background(), "slate-coder", "implement it")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRunnerFailure)
	assert.Contains(t, err.Error(), "model not found")
}

func TestInvokeTimeout(t *testing.T) {
	cmd := fakeCLI(t, `sleep 5`)
	c := New(Options{Command: cmd, Timeout: 100 * time.Millisecond}, logger.Discard())

	_, err := c.Invoke(context.Background(), "slate-coder", "implement it")
	assert.ErrorIs(t, err, domain.ErrRunnerTimeout)
}

func TestInvokePromptBudget(t *testing.T) {
	cmd := fakeCLI(t, `echo ok`)
	c := New(Options{Command: cmd, MaxPromptTokens: 10}, logger.Discard())

	// Both the real encoder and the bytes/4 estimate put this far over 10.
	huge := strings.Repeat("implement the whole system ", 2000)
	_, err := c.Invoke(context.Background(), "slate-coder", huge)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRunnerFailure)
	assert.Contains(t, err.Error(), "budget")
}

func TestInvokeCircuitBreakerOpens(t *testing.T) {
	c := New(Options{
		Command:            "/no/such/binary",
		BreakerMaxFailures: 2,
		BreakerCooldown:    time.Minute,
	}, logger.Discard())

	ctx := context.Background()
	_, err := c.Invoke(ctx, "m", "p")
	require.Error(t, err)
	_, err = c.Invoke(ctx, "m", "p")
	require.Error(t, err)

	// Third call trips on the open circuit without spawning anything.
	_, err = c.Invoke(ctx, "m", "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit open")
}

func TestOptionDefaults(t *testing.T) {
	c := New(Options{}, logger.Discard())
	assert.Equal(t, "ollama", c.opts.Command)
	assert.Equal(t, defaultTimeout, c.opts.Timeout)
	assert.Nil(t, c.limiter, "zero rate means unlimited")
}

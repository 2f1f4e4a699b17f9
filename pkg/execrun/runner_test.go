package execrun

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests spawn sh")
	}
}

type lineCollector struct {
	mu    sync.Mutex
	lines []string
	tags  []string
}

func (c *lineCollector) handle(tag, line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tags = append(c.tags, tag)
	c.lines = append(c.lines, line)
}

func TestRunStreamsCombinedOutput(t *testing.T) {
	requireUnix(t)
	collector := &lineCollector{}
	runner := New().WithLineHandler(collector.handle)

	res, err := runner.Run(context.Background(), Command{
		Args: []string{"sh", "-c", "echo out; echo err 1>&2"},
		Tag:  "10.0.0.0/24",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.False(t, res.TimedOut)
	assert.ElementsMatch(t, []string{"out", "err"}, collector.lines)
	for _, tag := range collector.tags {
		assert.Equal(t, "10.0.0.0/24", tag)
	}
}

func TestRunReportsExitCode(t *testing.T) {
	requireUnix(t)
	runner := New().WithLineHandler(func(string, string) {})

	res, err := runner.Run(context.Background(), Command{Args: []string{"sh", "-c", "exit 3"}})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.False(t, res.TimedOut)
}

func TestRunTimesOut(t *testing.T) {
	requireUnix(t)
	runner := New().
		WithLineHandler(func(string, string) {}).
		WithGracePeriod(200 * time.Millisecond)

	start := time.Now()
	res, err := runner.Run(context.Background(), Command{
		Args:    []string{"sh", "-c", "sleep 30"},
		Timeout: 100 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, SentinelExitCode, res.ExitCode)
	assert.True(t, res.TimedOut)
	assert.Less(t, time.Since(start), 5*time.Second, "run must not wait for the full sleep")
}

func TestRunEscalatesToKill(t *testing.T) {
	requireUnix(t)
	runner := New().
		WithLineHandler(func(string, string) {}).
		WithGracePeriod(100 * time.Millisecond)

	// SIG_IGN survives exec, so the sleep ignores SIGTERM and only the
	// forced kill after the grace period can stop it.
	res, err := runner.Run(context.Background(), Command{
		Args:    []string{"sh", "-c", "trap '' TERM; exec sleep 30"},
		Timeout: 100 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, SentinelExitCode, res.ExitCode)
	assert.True(t, res.TimedOut)
}

func TestRunCancelledContextIsNotATimeout(t *testing.T) {
	requireUnix(t)
	runner := New().
		WithLineHandler(func(string, string) {}).
		WithGracePeriod(100 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	res, err := runner.Run(ctx, Command{Args: []string{"sh", "-c", "sleep 30"}})
	require.NoError(t, err)
	assert.Equal(t, SentinelExitCode, res.ExitCode)
	assert.False(t, res.TimedOut)
}

func TestRunEmptyCommand(t *testing.T) {
	_, err := New().Run(context.Background(), Command{})
	assert.Error(t, err)
}

func TestRunMissingExecutable(t *testing.T) {
	requireUnix(t)
	res, err := New().Run(context.Background(), Command{Args: []string{"/nonexistent/tool"}})
	assert.Error(t, err)
	assert.Equal(t, SentinelExitCode, res.ExitCode)
}

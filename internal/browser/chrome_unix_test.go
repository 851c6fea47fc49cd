//go:build unix

package browser

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/config"
)

// fakeChrome writes a script that records its pid and never prints a
// DevTools endpoint, so allocation blocks until it is cancelled.
func fakeChrome(t *testing.T) (execPath, pidFile string) {
	t.Helper()
	dir := t.TempDir()
	pidFile = filepath.Join(dir, "pid")
	execPath = filepath.Join(dir, "fake-chrome")
	script := "#!/bin/sh\necho $$ > '" + pidFile + "'\nexec sleep 30\n"
	require.NoError(t, os.WriteFile(execPath, []byte(script), 0o755))
	return execPath, pidFile
}

func readPid(t *testing.T, pidFile string) int {
	t.Helper()
	data, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)
	return pid
}

func TestChromeLauncher_CancelledDuringStartup(t *testing.T) {
	execPath, pidFile := fakeChrome(t)
	launcher := NewChromeLauncher(&config.BrowserConfig{
		Headless:     true,
		UserAgent:    "test-agent",
		WindowWidth:  800,
		WindowHeight: 600,
		ExecPath:     execPath,
		IdleEvent:    config.IdleEventNetworkIdle,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel once the browser process is up but still allocating
	go func() {
		for ctx.Err() == nil {
			if _, err := os.Stat(pidFile); err == nil {
				cancel()
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	start := time.Now()
	session, err := launcher.Launch(ctx)
	require.Error(t, err)
	assert.Nil(t, session)
	assert.ErrorIs(t, err, ErrBrowserStartup)
	assert.Less(t, time.Since(start), 15*time.Second, "launch must return promptly once cancelled")

	pid := readPid(t, pidFile)
	assert.Eventually(t, func() bool {
		return syscall.Kill(pid, 0) != nil
	}, 5*time.Second, 20*time.Millisecond, "browser process %d should be gone", pid)
}

func TestChromeLauncher_AlreadyCancelled(t *testing.T) {
	execPath, _ := fakeChrome(t)
	launcher := NewChromeLauncher(&config.BrowserConfig{
		Headless:     true,
		UserAgent:    "test-agent",
		WindowWidth:  800,
		WindowHeight: 600,
		ExecPath:     execPath,
		IdleEvent:    config.IdleEventNetworkIdle,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	session, err := launcher.Launch(ctx)
	require.Error(t, err)
	assert.Nil(t, session)
	assert.ErrorIs(t, err, ErrBrowserStartup)
}

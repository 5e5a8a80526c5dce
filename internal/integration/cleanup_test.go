package integration

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stigoleg/middleclick/internal/config"
	"github.com/stigoleg/middleclick/internal/platform/platformtest"
	"github.com/stigoleg/middleclick/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helperEnv = "TEST_MIDDLECLICK_HELPER"

// Exit codes reported by TestServiceHelper.
const (
	helperClean     = 0
	helperStartFail = 1
	helperLeaked    = 2
)

// TestCleanupOnSignal verifies that every termination signal releases the
// pointer hook and touch subscriptions before the process exits.
func TestCleanupOnSignal(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("signals cannot be delivered on Windows")
	}
	if testing.Short() {
		t.Skip("skipping cleanup test in short mode")
	}

	for _, sig := range terminationSignals() {
		t.Run(sig.String(), func(t *testing.T) {
			cmd := exec.Command(os.Args[0], "-test.run=TestServiceHelper")
			cmd.Env = append(os.Environ(), helperEnv+"=1")
			stdout, err := cmd.StdoutPipe()
			require.NoError(t, err)
			require.NoError(t, cmd.Start(), "helper process should start")

			ready := make(chan struct{})
			go func() {
				scanner := bufio.NewScanner(stdout)
				for scanner.Scan() {
					if scanner.Text() == "ready" {
						close(ready)
						break
					}
				}
				_, _ = io.Copy(io.Discard, stdout)
			}()

			select {
			case <-ready:
			case <-time.After(5 * time.Second):
				_ = cmd.Process.Kill()
				t.Fatal("helper did not become ready")
			}

			require.NoError(t, cmd.Process.Signal(sig), "should send %s", sig)

			done := make(chan error, 1)
			go func() {
				done <- cmd.Wait()
			}()

			select {
			case err := <-done:
				assert.NoError(t, err, "process should exit cleanly after %s", sig)
			case <-time.After(5 * time.Second):
				_ = cmd.Process.Kill()
				t.Fatalf("process did not exit within timeout after %s", sig)
			}
		})
	}
}

// TestServiceHelper is the child process for TestCleanupOnSignal.
func TestServiceHelper(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		return
	}

	dir, err := os.MkdirTemp("", "middleclick-helper")
	if err != nil {
		os.Exit(helperStartFail)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, terminationSignals()...)

	backend := platformtest.New()
	pad := backend.AddDevice("/dev/input/event4", "Helper Touchpad")
	svc := service.New(config.NewStore(filepath.Join(dir, "settings.ini")), backend, service.DefaultOptions())
	if err := svc.Start(context.Background()); err != nil {
		os.Exit(helperStartFail)
	}
	fmt.Println("ready")

	<-sigChan

	_ = svc.Stop()
	code := helperClean
	if backend.Hooked() || pad.Subscribers() != 0 || backend.Notifications() != 0 {
		code = helperLeaked
	}
	os.RemoveAll(dir)
	os.Exit(code)
}

// TestStopIsBounded verifies that stopping with a short timeout returns
// promptly and leaves nothing grabbed.
func TestStopIsBounded(t *testing.T) {
	h := newHarness(t, time.Second)

	start := time.Now()
	err := h.svc.StopWithTimeout(100 * time.Millisecond)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "stop should complete within timeout")
	assert.NoError(t, err)
	assert.False(t, h.svc.IsRunning())
	assert.False(t, h.backend.Hooked())
}

// TestConcurrentStops verifies that Stop is idempotent under concurrency.
func TestConcurrentStops(t *testing.T) {
	h := newHarness(t, time.Second)

	done := make(chan error, 5)
	for i := 0; i < 5; i++ {
		go func() {
			done <- h.svc.Stop()
		}()
	}

	for i := 0; i < 5; i++ {
		select {
		case err := <-done:
			assert.NoError(t, err, "concurrent stop %d should succeed", i)
		case <-time.After(2 * time.Second):
			t.Fatal("stop did not complete within timeout")
		}
	}

	assert.False(t, h.svc.IsRunning())
	assert.Equal(t, 0, h.pad.Subscribers())
	assert.Equal(t, 0, h.backend.Notifications())
}

// TestPendingRestartDroppedOnStop verifies that a debounced restart does not
// reinstall the hook after the service stopped.
func TestPendingRestartDroppedOnStop(t *testing.T) {
	h := newHarness(t, 50*time.Millisecond)

	h.backend.Wake()
	require.NoError(t, h.svc.Stop())

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, h.backend.Installs())
	assert.False(t, h.backend.Hooked())
}

package main

import (
	"path/filepath"
	"testing"
)

func TestStatusCommandWithDaemonOffline(t *testing.T) {
	env := setupCLITestEnv(t)

	// Point at a socket nothing listens on so the snapshot takes the
	// offline fallback paths.
	deadSocket := filepath.Join(env.cfg.Paths.LogDir, "missing.sock")

	out, _, err := runCLI(t, []string{"status"}, deadSocket, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "System Status")
	requireContains(t, out, "Not running")
	requireContains(t, out, "Dependencies")
	requireContains(t, out, "FFmpeg")
	requireContains(t, out, "Directories")
	requireContains(t, out, "Queue is empty")
}

func TestStatusCommandWithDaemonRunning(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"start"}, env.socketPath, env.configPath); err != nil {
		t.Fatalf("start: %v", err)
	}

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Running")
	requireContains(t, out, "Transcoding")
}

func TestStopCommandWhenDaemonNotRunning(t *testing.T) {
	env := setupCLITestEnv(t)

	deadSocket := filepath.Join(env.cfg.Paths.LogDir, "missing.sock")
	out, _, err := runCLI(t, []string{"stop"}, deadSocket, env.configPath)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}

func TestPauseAndResumeCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"start"}, env.socketPath, env.configPath); err != nil {
		t.Fatalf("start: %v", err)
	}

	out, _, err := runCLI(t, []string{"pause"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	requireContains(t, out, "Paused: yes")

	out, _, err = runCLI(t, []string{"resume"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	requireContains(t, out, "Paused: no")
}

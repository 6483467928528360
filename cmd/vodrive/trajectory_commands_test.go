package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang/geo/r3"

	"vodrive/internal/engine"
	"vodrive/internal/testsupport"
	"vodrive/internal/trajectory"
)

func seedTrajectory(t *testing.T, env *cliTestEnv) {
	t.Helper()
	store := testsupport.MustOpenTrajectoryStore(t, env.cfg)
	ctx := context.Background()

	started := time.Now().Add(-time.Minute)
	if err := store.CreateRun(ctx, trajectory.Run{ID: "run-old", Mode: trajectory.ModeLive, StartedAt: started}); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := store.CreateRun(ctx, trajectory.Run{ID: "run-new", Mode: trajectory.ModePlayback, Source: "/data/seq", Speed: 1, StartedAt: started.Add(10 * time.Second)}); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	poses := make([]trajectory.PoseRecord, 0, 3)
	for i := 0; i < 3; i++ {
		poses = append(poses, trajectory.PoseRecord{
			Generation: 1,
			FrameID:    i,
			Timestamp:  float64(i) * 0.1,
			Pose:       engine.Identity().WithTranslation(r3.Vector{X: float64(i)}),
		})
	}
	if err := store.AppendPoses(ctx, "run-new", poses); err != nil {
		t.Fatalf("AppendPoses: %v", err)
	}
	if err := store.FinishRun(ctx, "run-new", started.Add(20*time.Second)); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
}

func TestTrajectoryCommands(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithTrajectory())
	seedTrajectory(t, env)

	out, _, err := runCLI(t, []string{"trajectory", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("trajectory list: %v", err)
	}
	requireContains(t, out, "run-new")
	requireContains(t, out, "run-old")
	requireContains(t, out, "2 RUNS")
	if strings.Index(out, "run-new") > strings.Index(out, "run-old") {
		t.Fatalf("expected most recent run first:\n%s", out)
	}

	out, _, err = runCLI(t, []string{"traj", "show"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("trajectory show: %v", err)
	}
	requireContains(t, out, "Run:         run-new")
	requireContains(t, out, "Poses:       3")
	requireContains(t, out, "Path length: 2.000")

	out, _, err = runCLI(t, []string{"trajectory", "export", "run-new"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("trajectory export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 TUM lines, got %d:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[2], "0.200000 2.000000 0.000000 0.000000") {
		t.Fatalf("unexpected TUM line %q", lines[2])
	}

	target := filepath.Join(env.baseDir, "export.txt")
	_, stderr, err := runCLI(t, []string{"trajectory", "export", "latest", "-o", target}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("trajectory export -o: %v", err)
	}
	requireContains(t, stderr, "Wrote 3 poses")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected export file: %v", err)
	}

	out, _, err = runCLI(t, []string{"trajectory", "delete", "run-old"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("trajectory delete: %v", err)
	}
	requireContains(t, out, "Deleted run run-old")
	if _, _, err := runCLI(t, []string{"trajectory", "show", "run-old"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected show of deleted run to fail")
	}
}

func TestTrajectoryWithoutDatabase(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"trajectory", "list"}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "trajectory.enabled") {
		t.Fatalf("expected missing database hint, got %v", err)
	}
}

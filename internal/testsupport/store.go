package testsupport

import (
	"testing"

	"vodrive/internal/config"
	"vodrive/internal/trajectory"
)

// MustOpenTrajectoryStore opens a trajectory.Store for tests and registers cleanup.
func MustOpenTrajectoryStore(t testing.TB, cfg *config.Config) *trajectory.Store {
	t.Helper()

	store, err := trajectory.Open(cfg)
	if err != nil {
		t.Fatalf("trajectory.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

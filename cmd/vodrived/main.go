// Command vodrived runs the vodrive daemon in the foreground. It is the
// unit-file friendly equivalent of `vodrive daemon`.
package main

import (
	"context"
	"log"
	"os"
	"strings"

	"vodrive/internal/config"
	"vodrive/internal/daemonrun"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{
		LogLevel: os.Getenv("VODRIVE_LOG_LEVEL"),
	}); err != nil {
		log.Fatalf("vodrived: %v", err)
	}
}

// loadConfig honors VODRIVE_CONFIG and VODRIVE_SOCKET on top of the usual
// config search path.
func loadConfig() (*config.Config, error) {
	cfg, _, _, err := config.Load(strings.TrimSpace(os.Getenv("VODRIVE_CONFIG")))
	if err != nil {
		return nil, err
	}
	if socket := strings.TrimSpace(os.Getenv("VODRIVE_SOCKET")); socket != "" {
		expanded, err := config.ExpandPath(socket)
		if err != nil {
			return nil, err
		}
		cfg.Paths.Socket = expanded
	}
	return cfg, nil
}

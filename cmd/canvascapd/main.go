package main

import (
	"context"
	"log"
	"os"

	"canvascapture/internal/config"
	"canvascapture/internal/daemonrun"
)

// configEnv names an explicit config file; otherwise the default search
// order applies.
const configEnv = "CANVASCAP_CONFIG"

func main() {
	cfg, _, _, err := config.Load(os.Getenv(configEnv))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{}); err != nil {
		log.Fatalf("canvascapd: %v", err)
	}
}

package main

import (
	"log"
	"os"

	"orderflow-engine/internal/app"
	"orderflow-engine/internal/config"
	"orderflow-engine/internal/ingest"
)

// replaySourceFromEnv opens REPLAY_FILE (newline-delimited JSON events) if
// set, otherwise reads from stdin — the reference ingest adapter named in
// SPEC_FULL.md §1, standing in for a live exchange WebSocket connection.
func replaySourceFromEnv() *ingest.ReplaySource {
	if path := os.Getenv("REPLAY_FILE"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			log.Fatalf("main: open replay file: %v", err)
		}
		return ingest.NewReplaySource(f)
	}
	return ingest.NewReplaySource(os.Stdin)
}

func main() {
	cfg := config.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("main: invalid configuration: %v", err)
	}

	source := replaySourceFromEnv()

	application := app.New(cfg, source)
	if err := application.Start(); err != nil {
		log.Fatal(err)
	}
}

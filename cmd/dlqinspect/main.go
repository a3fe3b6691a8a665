// dlqinspect lists the jobs parked on the dead-letter channel of a local
// docproc database. Intended for manual triage of exhausted jobs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joseph-ayodele/docproc/constants"
	"github.com/joseph-ayodele/docproc/internal/queue"
	"github.com/joseph-ayodele/docproc/internal/repository"
)

func main() {
	var dbPath string
	flag.StringVar(&dbPath, "db", "./docproc.db", "path to the docproc sqlite database")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	db, err := repository.OpenSQLite(dbPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	dlq, err := queue.NewDeadLetter(db, constants.ChannelDead, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open dead-letter queue: %v\n", err)
		os.Exit(1)
	}

	entries, err := dlq.List(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "list entries: %v\n", err)
		os.Exit(1)
	}

	if len(entries) == 0 {
		fmt.Printf("no entries on %s\n", constants.ChannelDead)
		return
	}

	fmt.Printf("%d entries on %s:\n\n", len(entries), constants.ChannelDead)
	for _, e := range entries {
		fmt.Printf("entry %s\n", e.ID)
		fmt.Printf("  job name:  %s\n", e.Name)
		fmt.Printf("  attempts:  %d\n", e.AttemptsMade)
		fmt.Printf("  dead at:   %s\n", e.CreatedAt.Format(time.RFC3339))
		if e.LastError != "" {
			fmt.Printf("  last err:  %s\n", e.LastError)
		}
		fmt.Printf("  payload:   %s\n\n", e.Payload)
	}
}

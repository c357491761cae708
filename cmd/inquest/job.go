package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dusk-indust/inquest/internal/ctxstore"
	"github.com/dusk-indust/inquest/internal/observe"
)

// runJob executes one investigation session and prints the artifact as JSON
// on stdout, with progress on stderr.
func runJob(flags cliFlags) error {
	logger, err := newLogger(flags.Verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	core, _, err := wireCore(ctx, flags, logger)
	if err != nil {
		return err
	}
	defer core.Close()

	seed, err := parseSeed(flags.Seed)
	if err != nil {
		return err
	}

	events := core.Events()
	go func() {
		for ev := range events {
			fmt.Fprintln(os.Stderr, observe.FormatEvent(ev))
		}
	}()

	sessionID, err := core.Submit(ctx, flags.JobKey, seed)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "session %s started for %s\n", sessionID, flags.JobKey)

	art, err := core.Wait(ctx, sessionID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(art)
}

// parseSeed turns -seed namespace/name=value flags into context entries.
func parseSeed(pairs []string) ([]ctxstore.Entry, error) {
	entries := make([]ctxstore.Entry, 0, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("seed %q must be namespace/name=value", p)
		}
		ns, name, ok := strings.Cut(key, "/")
		if !ok || ns == "" || name == "" {
			return nil, fmt.Errorf("seed key %q must be namespace/name", key)
		}
		entries = append(entries, ctxstore.Entry{
			Key:        ctxstore.Key{Namespace: ns, Name: name},
			Value:      ctxstore.StringValue(value),
			SourceTask: "submit",
			Confidence: 1,
		})
	}
	return entries, nil
}

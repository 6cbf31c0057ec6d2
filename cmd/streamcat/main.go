// Command streamcat copies a file, or standard input, to standard output
// through a stream pipeline of line filters.
//
// Usage:
//
//	streamcat [flags] [file]
//
// Every flag can also be set with a STREAMCAT_ environment variable, for
// example STREAMCAT_GREP or STREAMCAT_HIGH_WATER_MARK.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "streamcat: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// Command bufferpool-logtail prints the last N lines of a bufferpoold log
// file, scanning backwards from the end with github.com/icza/backscanner so
// it doesn't need to read the whole file for a long-running daemon. A plain
// operational log-tailing tool, with no recovery/replay semantics.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/icza/backscanner"
)

func main() {
	var (
		logPath = flag.String("log", "", "path to the bufferpoold log file (required)")
		lines   = flag.Int("n", 20, "number of trailing lines to print")
	)
	flag.Parse()
	if *logPath == "" {
		fmt.Fprintln(os.Stderr, "usage: bufferpool-logtail -log <path> [-n <lines>]")
		os.Exit(1)
	}

	f, err := os.Open(*logPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		fmt.Fprintln(os.Stderr, "stat:", err)
		os.Exit(1)
	}

	scanner := backscanner.New(f, int(info.Size()))
	out := make([]string, 0, *lines)
	for len(out) < *lines {
		line, _, err := scanner.Line()
		if err != nil {
			break
		}
		out = append(out, line)
	}
	for i := len(out) - 1; i >= 0; i-- {
		fmt.Println(out[i])
	}
}

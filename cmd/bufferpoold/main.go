// Command bufferpoold is the buffer pool daemon: it opens the backing data
// file, constructs the cache, binds the local socket, and serves GET/SET
// requests until SIGINT/SIGTERM, at which point it drains connections,
// flushes dirty pages, and exits.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"bufferpoold/internal/cache"
	"bufferpoold/internal/config"
	"bufferpoold/internal/dispatcher"
	"bufferpoold/internal/passthrough"
)

// showHitRateInterval logs the hit rate periodically in addition to on
// disconnect, since relying solely on disconnects makes it easy to miss
// operationally on long-lived connections.
const showHitRateInterval = 30 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	logger := log.New(os.Stderr, "", log.LstdFlags)

	var (
		simple = flag.Bool("simple", false, "use the pass-through reference cache instead of the LRU CacheEngine")
	)
	flag.Parse()
	args := flag.Args()
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: bufferpoold [-simple] <data-file> <socket-file> [count-8k] [count-16k] [count-32k] [count-2m]")
		return 1
	}
	dataFile, socketFile := args[0], args[1]
	var counts []int
	for _, a := range args[2:] {
		var n int
		if _, err := fmt.Sscanf(a, "%d", &n); err != nil {
			logger.Printf("[Lifecycle] invalid page count argument %q: %v", a, err)
			return 1
		}
		counts = append(counts, n)
	}

	cfg, err := config.Parse(dataFile, socketFile, counts)
	if err != nil {
		logger.Printf("[Lifecycle] configuration error: %v", err)
		return 1
	}
	logger.Printf("[Lifecycle] starting: data_file=%s socket=%s enabled_classes=%s capacity=%d",
		cfg.DataFile, cfg.SocketFile, cfg.EnabledString(), cfg.Capacity)

	var closeFn func() error
	var srv *dispatcher.Server

	if *simple {
		pt, err := passthrough.Open(cfg.DataFile, cfg.Layout)
		if err != nil {
			logger.Printf("[Lifecycle] failed to open pass-through cache: %v", err)
			return 1
		}
		closeFn = pt.Close
		srv, err = dispatcher.New(cfg.SocketFile, pt, logger)
		if err != nil {
			logger.Printf("[Lifecycle] failed to bind socket: %v", err)
			pt.Close()
			return 1
		}
	} else {
		eng, err := cache.Open(cfg.DataFile, cfg.Layout, cfg.Capacity, logger)
		if err != nil {
			logger.Printf("[Lifecycle] failed to open cache engine: %v", err)
			return 1
		}
		closeFn = eng.Close
		srv, err = dispatcher.New(cfg.SocketFile, eng, logger)
		if err != nil {
			logger.Printf("[Lifecycle] failed to bind socket: %v", err)
			eng.Close()
			return 1
		}
	}

	// Serve returns as soon as Drain closes the listener; drainOnce makes the
	// main goroutine wait for the drain to finish before closing the cache.
	var drainOnce sync.Once
	drain := func() { drainOnce.Do(srv.Drain) }

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Printf("[Lifecycle] shutdown signal received, draining")
		drain()
	}()

	stopHitRate := make(chan struct{})
	go periodicHitRate(srv, stopHitRate)

	srv.Serve()
	drain()
	close(stopHitRate)

	if err := closeFn(); err != nil {
		logger.Printf("[Lifecycle] error closing cache: %v", err)
	}
	logger.Printf("[Lifecycle] shutdown complete")
	return 0
}

func periodicHitRate(srv *dispatcher.Server, stop <-chan struct{}) {
	ticker := time.NewTicker(showHitRateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			srv.LogHitRate()
		}
	}
}

// Command bufferpool-snapshot copies a bufferpoold backing file to a
// sibling path before a risky operator-triggered operation (e.g. a manual
// re-layout of the page-size classes), using github.com/otiai10/copy. A
// plain file copy utility, not a recovery journal: the daemon has no
// notion of snapshots at runtime.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/otiai10/copy"
)

func main() {
	var (
		src = flag.String("src", "", "path to the backing data file (required)")
		dst = flag.String("dst", "", "destination path for the snapshot (required)")
	)
	flag.Parse()
	if *src == "" || *dst == "" {
		fmt.Fprintln(os.Stderr, "usage: bufferpool-snapshot -src <data-file> -dst <snapshot-path>")
		os.Exit(1)
	}
	if err := copy.Copy(*src, *dst); err != nil {
		fmt.Fprintln(os.Stderr, "snapshot failed:", err)
		os.Exit(1)
	}
	fmt.Printf("snapshotted %s -> %s\n", *src, *dst)
}

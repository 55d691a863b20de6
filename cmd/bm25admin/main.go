// Command bm25admin is the operator CLI for the BM25 index access
// method: schema/catalog inspection, amcheck-style validation and the
// merge/vacuum diagnostics, run against an index no live
// writer process has open.
package main

import (
	"fmt"
	"os"

	"github.com/paradex-labs/bm25index/cmd/bm25admin/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

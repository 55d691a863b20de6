// Package configs provides the embedded index-options template shipped
// alongside the binary, so `bm25admin` can scaffold a new index's
// options file without the caller needing a copy of the repo on disk.
//
// Template files:
//   - index-options.example.yaml: a full example covering every field
//     kind plus the layer-size and predicate options.
//
// To modify the template, edit the .yaml file in this directory and
// rebuild; the embedded copy only changes on the next build.
package configs

import _ "embed"

// IndexOptionsTemplate is the template `bm25admin init` writes out as a
// starting point for a new index's options file.
//
//go:embed index-options.example.yaml
var IndexOptionsTemplate string

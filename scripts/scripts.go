// Package scripts embeds the built-in Risor compile scripts so the kiln
// binary works without a scripts directory on disk.
package scripts

import "embed"

// FS contains the compile/ script tree.
//
//go:embed compile
var FS embed.FS

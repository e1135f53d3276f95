// Package libs embeds the descriptors of the libraries coinbuild knows how
// to build.
package libs

import "embed"

// FS holds one directory per library: <lower>/<lower>.toml plus its source
// manifest.
//
//go:embed osi
var FS embed.FS

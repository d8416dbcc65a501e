// Package root ships the portal's static assets, currently the HTML mail
// templates, inside the binaries.
package root

import "embed"

// Assets holds everything under assets/.
//
//go:embed all:assets
var Assets embed.FS

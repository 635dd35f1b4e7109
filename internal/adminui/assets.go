package adminui

import "embed"

//go:embed templates
var assets embed.FS

package web

import "embed"

// staticFiles holds the bench UI served under / and /static/.
//
//go:embed static/*
var staticFiles embed.FS

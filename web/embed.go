package web

import "embed"

// TemplatesFS embeds the dashboard page and partial templates.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS embeds the stylesheet and card icons.
//
//go:embed static/*
var StaticFS embed.FS

// Package appfs embeds the files the binaries need at runtime: database migrations, email templates and assets.
package appfs

import "embed"

//go:embed migrations/*.sql templates/email/* assets/*
var FS embed.FS

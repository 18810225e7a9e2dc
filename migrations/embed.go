// Package migrations embeds the device store schema into the binary.
//
// Files sit at the root of FS and are applied with
// database.Manager.Migrate(ctx, migrations.FS).
package migrations

import "embed"

// FS holds every *.sql migration in this directory.
//
//go:embed *.sql
var FS embed.FS

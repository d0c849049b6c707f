// Package migrations embeds the platform schema: tables, row-level
// policies, the avatars bucket and the realtime publication.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS

package mysql

import (
	"context"
	_ "embed"
	"strings"

	"github.com/loomhq/loom/server/contexts/ctxerr"
)

//go:embed schema.sql
var schemaSQL string

// MigrateTables applies the bootstrap schema. Every statement is written to
// be idempotent, so the call is safe to repeat on an initialized database.
func (d *Datastore) MigrateTables(ctx context.Context) error {
	// strip comment lines so each remaining chunk is one executable statement
	var b strings.Builder
	for _, line := range strings.Split(schemaSQL, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	for _, stmt := range strings.Split(b.String(), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return ctxerr.Wrap(ctx, err, "apply schema statement")
		}
	}
	return nil
}

package warehouse

import (
	"regexp"

	"github.com/lib/pq"
)

var identifierPattern = regexp.MustCompile(`[^a-z0-9_]+`)

// ChecksTableName returns the per-urlset check result table name.
func ChecksTableName(urlset string) string {
	return "checks_" + SanitizeIdentifier(urlset)
}

// SanitizeIdentifier reduces a name to the character set safe inside a
// generated table identifier.
func SanitizeIdentifier(name string) string {
	return identifierPattern.ReplaceAllString(name, "_")
}

// TableRef is an opaque handle to a table inside a configured dataset.
type TableRef struct {
	Dataset string
	Table   string
}

func (t TableRef) String() string {
	return pq.QuoteIdentifier(t.Dataset) + "." + pq.QuoteIdentifier(t.Table)
}

// Columns of a per-urlset check result table, in insert order.
var checkColumns = []string{
	"created",
	"check",
	"value",
	"valid",
	"diff",
	"error",
	"url_protocol",
	"url_domain",
	"url_path",
	"url_query",
}

const checkTableDDL = `
CREATE TABLE IF NOT EXISTS %s (
	created TIMESTAMP NOT NULL,
	"check" TEXT NOT NULL,
	value TEXT NOT NULL DEFAULT '',
	valid BOOLEAN NOT NULL,
	diff TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	url_protocol TEXT NOT NULL,
	url_domain TEXT NOT NULL,
	url_path TEXT NOT NULL,
	url_query TEXT NOT NULL DEFAULT ''
)`

const checkTableIndexDDL = `CREATE INDEX IF NOT EXISTS %s ON %s (created)`

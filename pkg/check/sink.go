package check

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"seoaudit/internal/errutil"
	metav1 "seoaudit/pkg/meta/v1"
	"seoaudit/pkg/store/warehouse"
)

// Sink persists check results. The implementation is chosen once at module
// construction from the module's database setting; business logic never
// branches on backend kind.
type Sink interface {
	AddCheck(ctx context.Context, urlset string, result metav1.CheckResult) error

	// Flush writes out whatever the sink buffered. A no-op for sinks that
	// write through.
	Flush(ctx context.Context) error
}

type warehouseSink struct {
	wh *warehouse.Warehouse
}

// NewWarehouseSink wraps the buffered warehouse writer. Results accumulate
// in memory and hit the warehouse on Flush.
func NewWarehouseSink(wh *warehouse.Warehouse) (Sink, error) {
	if wh == nil {
		return nil, &errutil.ConfigurationMissingError{Key: "databases.warehouse"}
	}

	return &warehouseSink{wh: wh}, nil
}

func (s *warehouseSink) AddCheck(ctx context.Context, urlset string, result metav1.CheckResult) error {
	s.wh.AddCheck(urlset, result)
	return nil
}

func (s *warehouseSink) Flush(ctx context.Context) error {
	return s.wh.Commit(ctx)
}

// DB is the slice of the sql layer the relational sink needs; *sqlx.DB
// satisfies it.
type DB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type relationalSink struct {
	db DB

	// urlIDs memoizes the urlset URL dimension lookup by the string form
	// of the URL. Single-goroutine access only, valid for one module run.
	urlIDs map[string]int64

	ensured map[string]bool
}

// NewRelationalSink writes check rows referencing a per-urlset URL
// dimension table. URL rows are deduplicated by lookup-before-insert with
// a unique constraint backing up concurrent writers; check rows are always
// new.
func NewRelationalSink(db DB) (Sink, error) {
	if db == nil {
		return nil, &errutil.ConfigurationMissingError{Key: "databases.relational"}
	}

	return &relationalSink{
		db:      db,
		urlIDs:  map[string]int64{},
		ensured: map[string]bool{},
	}, nil
}

func (s *relationalSink) AddCheck(ctx context.Context, urlset string, result metav1.CheckResult) error {
	if err := s.ensureTables(ctx, urlset); err != nil {
		return err
	}

	urlID, err := s.urlID(ctx, urlset, result.URL)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (created, last_checked, url, "check", valid, value, diff, error) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		pq.QuoteIdentifier(checksTableName(urlset)),
	)

	_, err = s.db.ExecContext(
		ctx, query,
		result.Created, result.Created, urlID, result.Check,
		result.Valid, result.Value, result.Diff, result.Error,
	)
	return err
}

func (s *relationalSink) Flush(ctx context.Context) error {
	return nil
}

func (s *relationalSink) urlID(ctx context.Context, urlset string, url metav1.URL) (int64, error) {
	key := url.String()

	if id, ok := s.urlIDs[key]; ok {
		return id, nil
	}

	id, err := s.lookupURL(ctx, urlset, url)

	if err == sql.ErrNoRows {
		insert := fmt.Sprintf(
			"INSERT INTO %s (protocol, domain, path, query) VALUES ($1, $2, $3, $4) ON CONFLICT (protocol, domain, path, query) DO NOTHING",
			pq.QuoteIdentifier(urlsTableName(urlset)),
		)

		if _, err := s.db.ExecContext(ctx, insert, url.Protocol, url.Domain, url.Path, url.Query); err != nil {
			return 0, err
		}

		id, err = s.lookupURL(ctx, urlset, url)
	}

	if err != nil {
		return 0, err
	}

	s.urlIDs[key] = id

	return id, nil
}

func (s *relationalSink) lookupURL(ctx context.Context, urlset string, url metav1.URL) (int64, error) {
	query := fmt.Sprintf(
		"SELECT id FROM %s WHERE protocol = $1 AND domain = $2 AND path = $3 AND query = $4",
		pq.QuoteIdentifier(urlsTableName(urlset)),
	)

	var id int64

	err := s.db.GetContext(ctx, &id, query, url.Protocol, url.Domain, url.Path, url.Query)
	return id, err
}

func (s *relationalSink) ensureTables(ctx context.Context, urlset string) error {
	if s.ensured[urlset] {
		return nil
	}

	urls := pq.QuoteIdentifier(urlsTableName(urlset))
	checks := pq.QuoteIdentifier(checksTableName(urlset))

	ddls := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id SERIAL PRIMARY KEY,
	protocol TEXT NOT NULL,
	domain TEXT NOT NULL,
	path TEXT NOT NULL,
	query TEXT NOT NULL DEFAULT '',
	UNIQUE (protocol, domain, path, query)
)`, urls),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id SERIAL PRIMARY KEY,
	created TIMESTAMP NOT NULL,
	last_checked TIMESTAMP NOT NULL,
	url INTEGER NOT NULL REFERENCES %s (id),
	"check" TEXT NOT NULL,
	valid BOOLEAN NOT NULL,
	value TEXT NOT NULL DEFAULT '',
	diff TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT ''
)`, checks, urls),
	}

	for _, ddl := range ddls {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}

	s.ensured[urlset] = true

	return nil
}

func urlsTableName(urlset string) string {
	return "urls_" + warehouse.SanitizeIdentifier(urlset)
}

func checksTableName(urlset string) string {
	return warehouse.ChecksTableName(urlset)
}

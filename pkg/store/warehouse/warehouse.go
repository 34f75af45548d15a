package warehouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"

	metav1 "seoaudit/pkg/meta/v1"
)

// WriteDisposition controls what a bulk load does to existing table data.
type WriteDisposition string

const (
	WriteAppend   WriteDisposition = "WRITE_APPEND"
	WriteTruncate WriteDisposition = "WRITE_TRUNCATE"
)

type Config struct {
	DSN     string
	Dataset string

	// AdditionalDatasets maps configured dataset aliases to schema names.
	// Referencing an alias outside this map fails with
	// ErrDatasetDoesNotExist.
	AdditionalDatasets map[string]string
}

type LoadOptions struct {
	Disposition WriteDisposition

	// PartitionColumn is the timestamp column the table is day-partitioned
	// by; an index on it is ensured during load.
	PartitionColumn string
}

// Warehouse is the columnar, append-optimized analytics backend. Check
// writes are buffered per destination table and flushed in one bulk insert
// per table by Commit - per-row inserts are too expensive on this side.
//
// Not safe for concurrent use; each module run owns its own instance.
type Warehouse struct {
	cfg Config

	db    *sqlx.DB
	batch map[TableRef][]metav1.CheckResult

	log *log.Entry
}

func New(cfg Config) *Warehouse {
	return &Warehouse{
		cfg:   cfg,
		batch: map[TableRef][]metav1.CheckResult{},
		log:   log.WithField("component", "warehouse"),
	}
}

// Connect establishes the connection, ensures the configured datasets and
// initializes one check table per urlset.
func (w *Warehouse) Connect(ctx context.Context, urlsets []string) error {
	db, err := sqlx.ConnectContext(ctx, "postgres", w.cfg.DSN)
	if err != nil {
		return err
	}

	w.db = db

	datasets := []string{w.cfg.Dataset}
	for _, schema := range w.cfg.AdditionalDatasets {
		datasets = append(datasets, schema)
	}

	for _, dataset := range datasets {
		if _, err := db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+pq.QuoteIdentifier(dataset)); err != nil {
			return err
		}
	}

	for _, urlset := range urlsets {
		if err := w.initCheckTable(ctx, urlset); err != nil {
			return err
		}
	}

	return nil
}

func (w *Warehouse) Close() error {
	if w.db == nil {
		return nil
	}

	return w.db.Close()
}

func (w *Warehouse) initCheckTable(ctx context.Context, urlset string) error {
	ref := TableRef{Dataset: w.cfg.Dataset, Table: ChecksTableName(urlset)}

	if _, err := w.db.ExecContext(ctx, fmt.Sprintf(checkTableDDL, ref)); err != nil {
		return err
	}

	index := pq.QuoteIdentifier(ref.Table + "_created_idx")

	_, err := w.db.ExecContext(ctx, fmt.Sprintf(checkTableIndexDDL, index, ref))
	return err
}

// TableReference resolves a table handle. An empty dataset name means the
// default dataset; any other name must be configured.
func (w *Warehouse) TableReference(table, dataset string) (TableRef, error) {
	if dataset == "" {
		return TableRef{Dataset: w.cfg.Dataset, Table: table}, nil
	}

	schema, ok := w.cfg.AdditionalDatasets[dataset]
	if !ok {
		return TableRef{}, fmt.Errorf("%w: %s", ErrDatasetDoesNotExist, dataset)
	}

	return TableRef{Dataset: schema, Table: table}, nil
}

func (w *Warehouse) HasTable(ctx context.Context, table, dataset string) (bool, error) {
	if w.db == nil {
		return false, ErrNotConnected
	}

	ref, err := w.TableReference(table, dataset)
	if err != nil {
		return false, err
	}

	var count int

	err = w.db.GetContext(
		ctx,
		&count,
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2",
		ref.Dataset,
		ref.Table,
	)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// AddCheck buffers one check result for the urlset's check table. Nothing
// is written until Commit.
func (w *Warehouse) AddCheck(urlset string, result metav1.CheckResult) {
	ref := TableRef{Dataset: w.cfg.Dataset, Table: ChecksTableName(urlset)}

	w.batch[ref] = append(w.batch[ref], result)
}

// Buffered returns the number of results waiting for Commit.
func (w *Warehouse) Buffered() int {
	n := 0
	for _, results := range w.batch {
		n += len(results)
	}

	return n
}

// Commit flushes all buffered batches, one bulk insert per table. The
// buffer is cleared per table as it is written.
func (w *Warehouse) Commit(ctx context.Context) error {
	if w.db == nil {
		return ErrNotConnected
	}

	for ref, results := range w.batch {
		if len(results) == 0 {
			continue
		}

		rows := make([][]interface{}, len(results))
		for i, r := range results {
			rows[i] = []interface{}{
				r.Created, r.Check, r.Value, r.Valid, r.Diff, r.Error,
				r.URL.Protocol, r.URL.Domain, r.URL.Path, r.URL.Query,
			}
		}

		if err := w.bulkInsert(ctx, ref, checkColumns, rows); err != nil {
			return err
		}

		w.log.WithField("table", ref.String()).Infof("committed %d check results", len(results))

		delete(w.batch, ref)
	}

	return nil
}

// LoadRows bulk-loads rows into a table, used by aggregation connectors for
// large datasets. WriteTruncate replaces existing data atomically with the
// load.
func (w *Warehouse) LoadRows(ctx context.Context, ref TableRef, columns []string, rows [][]interface{}, opts LoadOptions) error {
	if w.db == nil {
		return ErrNotConnected
	}

	tx, err := w.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	if opts.Disposition == WriteTruncate {
		if _, err := tx.ExecContext(ctx, "TRUNCATE TABLE "+ref.String()); err != nil {
			tx.Rollback()
			return err
		}
	}

	query, args := buildInsert(ref, columns, rows)

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	if opts.PartitionColumn != "" {
		index := pq.QuoteIdentifier(ref.Table + "_" + opts.PartitionColumn + "_idx")
		ddl := fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			index, ref, pq.QuoteIdentifier(opts.PartitionColumn),
		)

		if _, err := w.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}

	return nil
}

func (w *Warehouse) bulkInsert(ctx context.Context, ref TableRef, columns []string, rows [][]interface{}) error {
	query, args := buildInsert(ref, columns, rows)

	_, err := w.db.ExecContext(ctx, query, args...)
	return err
}

func buildInsert(ref TableRef, columns []string, rows [][]interface{}) (string, []interface{}) {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = pq.QuoteIdentifier(c)
	}

	var (
		placeholders []string
		args         []interface{}
	)

	n := 1

	for _, row := range rows {
		marks := make([]string, len(row))
		for i, v := range row {
			marks[i] = fmt.Sprintf("$%d", n)
			args = append(args, v)
			n++
		}

		placeholders = append(placeholders, "("+strings.Join(marks, ", ")+")")
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES %s",
		ref, strings.Join(quoted, ", "), strings.Join(placeholders, ", "),
	)

	return query, args
}

// Query runs raw SQL. Failures come back as *QueryError with the query
// text attached.
func (w *Warehouse) Query(ctx context.Context, query string) ([]metav1.Document, error) {
	if w.db == nil {
		return nil, ErrNotConnected
	}

	rows, err := w.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, &QueryError{Query: query, Errs: []error{err}}
	}

	defer rows.Close()

	var result []metav1.Document

	for rows.Next() {
		row := map[string]interface{}{}

		if err := rows.MapScan(row); err != nil {
			return nil, &QueryError{Query: query, Errs: []error{err}}
		}

		result = append(result, metav1.Document(row))
	}

	if err := rows.Err(); err != nil {
		return nil, &QueryError{Query: query, Errs: []error{err}}
	}

	return result, nil
}

// HasDataForDate is the idempotency pre-check: whether the table already
// holds rows whose partition column falls on the given day.
func (w *Warehouse) HasDataForDate(ctx context.Context, ref TableRef, column string, day time.Time) (bool, error) {
	if w.db == nil {
		return false, ErrNotConnected
	}

	query := fmt.Sprintf(
		"SELECT COUNT(*) FROM %s WHERE %s::date = $1",
		ref, pq.QuoteIdentifier(column),
	)

	var count int

	if err := w.db.GetContext(ctx, &count, query, day.Format("2006-01-02")); err != nil {
		return false, err
	}

	return count > 0, nil
}

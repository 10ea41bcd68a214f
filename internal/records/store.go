package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/temirov/gitcollect/internal/collect"
)

// Driver names a supported database backend.
type Driver string

// Supported drivers.
const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

const (
	sqliteDriverNameConstant               = "sqlite"
	pgxDriverNameConstant                  = "pgx"
	pgxAliasConstant                       = "pgx"
	sqliteMemoryDSNConstant                = ":memory:"
	sqliteURIPrefixConstant                = "file:"
	databaseDirectoryPermissionsConstant   = 0o755
	unsupportedDriverTemplateConstant      = "%w: %s"
	openErrorTemplateConstant              = "unable to open %s record store: %w"
	migrationErrorTemplateConstant         = "unable to prepare record schema: %w"
	decodeErrorTemplateConstant            = "unable to decode record %d of run %s: %w"
	postgresPlaceholderPrefixConstant      = "$"
	sqlitePlaceholderConstant              = "?"
	sqliteQuerySeparatorConstant           = "?"
	sqliteParameterSeparatorConstant       = "&"
	sqliteTransactionLockParameterConstant = "_txlock="
	sqliteWriterParametersConstant         = "_txlock=immediate&_pragma=busy_timeout(5000)"
	postgresRunLockStatementConstant       = `SELECT pg_advisory_xact_lock(hashtext($1))`
)

const schemaStatement = `CREATE TABLE IF NOT EXISTS build_records (
	run_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	record_index INTEGER NOT NULL,
	scm_name TEXT NOT NULL,
	remote_urls TEXT NOT NULL,
	builds TEXT NOT NULL,
	PRIMARY KEY (run_id, position)
)`

const (
	selectRecordsTemplateConstant = `SELECT position, record_index, scm_name, remote_urls, builds FROM build_records WHERE run_id = %s ORDER BY position`
	deleteRecordsTemplateConstant = `DELETE FROM build_records WHERE run_id = %s`
	insertRecordTemplateConstant  = `INSERT INTO build_records (run_id, position, record_index, scm_name, remote_urls, builds) VALUES (%s, %s, %s, %s, %s, %s)`
	selectRunsStatementConstant   = `SELECT DISTINCT run_id FROM build_records ORDER BY run_id`
)

// ErrUnsupportedDriver indicates an unknown database driver.
var ErrUnsupportedDriver = errors.New("unsupported record store driver")

// Store keeps build records in a SQL database keyed by run id.
type Store struct {
	database *sql.DB
	driver   Driver
}

// Open connects to the configured database and prepares the schema.
func Open(executionContext context.Context, configuration Configuration) (*Store, error) {
	sanitized := configuration.sanitize()
	driver, driverName, driverError := resolveDriver(sanitized.Driver)
	if driverError != nil {
		return nil, driverError
	}

	if driver == DriverSQLite {
		if directoryError := ensureDatabaseDirectory(sanitized.DSN); directoryError != nil {
			return nil, fmt.Errorf(openErrorTemplateConstant, driver, directoryError)
		}
	}

	dataSourceName := sanitized.DSN
	if driver == DriverSQLite {
		dataSourceName = sqliteDataSourceName(dataSourceName)
	}
	database, openError := sql.Open(driverName, dataSourceName)
	if openError != nil {
		return nil, fmt.Errorf(openErrorTemplateConstant, driver, openError)
	}
	if driver == DriverSQLite {
		database.SetMaxOpenConns(1)
	}
	if pingError := database.PingContext(executionContext); pingError != nil {
		database.Close()
		return nil, fmt.Errorf(openErrorTemplateConstant, driver, pingError)
	}
	if _, schemaError := database.ExecContext(executionContext, schemaStatement); schemaError != nil {
		database.Close()
		return nil, fmt.Errorf(migrationErrorTemplateConstant, schemaError)
	}

	return &Store{database: database, driver: driver}, nil
}

// Close releases the database connection.
func (store *Store) Close() error {
	return store.database.Close()
}

// Load returns the records of runID in registration order.
func (store *Store) Load(executionContext context.Context, runID string) ([]collect.BuildRecord, error) {
	return store.load(executionContext, store.database, runID)
}

// Save replaces the records of runID atomically.
func (store *Store) Save(executionContext context.Context, runID string, records []collect.BuildRecord) error {
	_, updateError := store.Update(executionContext, runID, func([]collect.BuildRecord) []collect.BuildRecord {
		return records
	})
	return updateError
}

// Update reads the records of runID, applies mutate and writes the result in one transaction that holds the
// run's write lock, so concurrent collections of the same run do not lose each other's records.
func (store *Store) Update(executionContext context.Context, runID string, mutate func(existing []collect.BuildRecord) []collect.BuildRecord) ([]collect.BuildRecord, error) {
	transaction, beginError := store.database.BeginTx(executionContext, nil)
	if beginError != nil {
		return nil, beginError
	}
	defer transaction.Rollback()

	if store.driver == DriverPostgres {
		if _, lockError := transaction.ExecContext(executionContext, postgresRunLockStatementConstant, runID); lockError != nil {
			return nil, lockError
		}
	}

	existing, loadError := store.load(executionContext, transaction, runID)
	if loadError != nil {
		return nil, loadError
	}
	updated := mutate(existing)
	if replaceError := store.replace(executionContext, transaction, runID, updated); replaceError != nil {
		return nil, replaceError
	}
	if commitError := transaction.Commit(); commitError != nil {
		return nil, commitError
	}
	return updated, nil
}

type queryer interface {
	QueryContext(executionContext context.Context, query string, arguments ...any) (*sql.Rows, error)
}

func (store *Store) load(executionContext context.Context, source queryer, runID string) ([]collect.BuildRecord, error) {
	rows, queryError := source.QueryContext(executionContext, fmt.Sprintf(selectRecordsTemplateConstant, store.placeholder(1)), runID)
	if queryError != nil {
		return nil, queryError
	}
	defer rows.Close()

	var records []collect.BuildRecord
	for rows.Next() {
		var position int
		var record collect.BuildRecord
		var remoteURLs string
		var builds string
		if scanError := rows.Scan(&position, &record.Index, &record.SCMName, &remoteURLs, &builds); scanError != nil {
			return nil, scanError
		}
		if decodeError := json.Unmarshal([]byte(remoteURLs), &record.RemoteURLs); decodeError != nil {
			return nil, fmt.Errorf(decodeErrorTemplateConstant, position, runID, decodeError)
		}
		if decodeError := json.Unmarshal([]byte(builds), &record.Builds); decodeError != nil {
			return nil, fmt.Errorf(decodeErrorTemplateConstant, position, runID, decodeError)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (store *Store) replace(executionContext context.Context, transaction *sql.Tx, runID string, records []collect.BuildRecord) error {
	if _, deleteError := transaction.ExecContext(executionContext, fmt.Sprintf(deleteRecordsTemplateConstant, store.placeholder(1)), runID); deleteError != nil {
		return deleteError
	}

	insertStatement := fmt.Sprintf(insertRecordTemplateConstant,
		store.placeholder(1), store.placeholder(2), store.placeholder(3),
		store.placeholder(4), store.placeholder(5), store.placeholder(6))
	for position, record := range records {
		remoteURLs, encodeError := json.Marshal(record.RemoteURLs)
		if encodeError != nil {
			return encodeError
		}
		builds, encodeError := json.Marshal(record.Builds)
		if encodeError != nil {
			return encodeError
		}
		if _, insertError := transaction.ExecContext(executionContext, insertStatement, runID, position, record.Index, record.SCMName, string(remoteURLs), string(builds)); insertError != nil {
			return insertError
		}
	}
	return nil
}

// Runs lists the run ids holding records.
func (store *Store) Runs(executionContext context.Context) ([]string, error) {
	rows, queryError := store.database.QueryContext(executionContext, selectRunsStatementConstant)
	if queryError != nil {
		return nil, queryError
	}
	defer rows.Close()

	var runIDs []string
	for rows.Next() {
		var runID string
		if scanError := rows.Scan(&runID); scanError != nil {
			return nil, scanError
		}
		runIDs = append(runIDs, runID)
	}
	return runIDs, rows.Err()
}

func (store *Store) placeholder(position int) string {
	if store.driver == DriverPostgres {
		return postgresPlaceholderPrefixConstant + strconv.Itoa(position)
	}
	return sqlitePlaceholderConstant
}

func resolveDriver(value string) (Driver, string, error) {
	switch value {
	case string(DriverSQLite):
		return DriverSQLite, sqliteDriverNameConstant, nil
	case string(DriverPostgres), pgxAliasConstant:
		return DriverPostgres, pgxDriverNameConstant, nil
	default:
		return "", "", fmt.Errorf(unsupportedDriverTemplateConstant, ErrUnsupportedDriver, value)
	}
}

func ensureDatabaseDirectory(dsn string) error {
	if dsn == sqliteMemoryDSNConstant || strings.HasPrefix(dsn, sqliteURIPrefixConstant) {
		return nil
	}
	directory := filepath.Dir(dsn)
	if directory == "." {
		return nil
	}
	return os.MkdirAll(directory, databaseDirectoryPermissionsConstant)
}

// sqliteDataSourceName makes every transaction take the write lock when it begins and wait for other writers.
func sqliteDataSourceName(dsn string) string {
	if strings.Contains(dsn, sqliteTransactionLockParameterConstant) {
		return dsn
	}
	separator := sqliteQuerySeparatorConstant
	if strings.Contains(dsn, sqliteQuerySeparatorConstant) {
		separator = sqliteParameterSeparatorConstant
	}
	return dsn + separator + sqliteWriterParametersConstant
}

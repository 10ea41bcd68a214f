// Package records persists the build records of each pipeline run so that several collect invocations in one
// run share a registry. SQLite (modernc.org/sqlite) is the default backend; PostgreSQL is reached through pgx.
package records

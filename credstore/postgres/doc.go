// Package postgres is an authgate.CredentialStore on PostgreSQL through the
// pgx database/sql driver. The schema ships as embedded goose migrations;
// call Migrate once at startup.
package postgres

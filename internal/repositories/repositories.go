// Package repositories holds the pgx-backed storage layer. Every balance
// mutation happens inside a database transaction with the wallet row
// locked, paired with its Transaction ledger row.
package repositories

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// ErrStaleStatus means a guarded status transition found the row in a
	// different state than expected (lost race or invalid transition).
	ErrStaleStatus = errors.New("row not in expected status")
)

const pgUniqueViolation = "23505"

func mapNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

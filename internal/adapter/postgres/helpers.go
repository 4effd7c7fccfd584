package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Strob0t/CloudLaunch/internal/domain"
)

// Postgres SQLSTATE codes mapped onto domain errors.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// scannable abstracts pgx.Row and pgx.Rows for shared scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

// nullTime stores nil and zero times as NULL.
func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return *t
}

// pgTextArray keeps nil slices out of NOT NULL array columns.
func pgTextArray(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// dbErr prefixes err with the formatted context and translates it: no rows
// becomes domain.ErrNotFound, unique and foreign key violations become
// domain.ErrConflict.
func dbErr(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("%s: %w", msg, domain.ErrNotFound)
	case pgCode(err) == codeUniqueViolation:
		return fmt.Errorf("%s: already exists: %w", msg, domain.ErrConflict)
	case pgCode(err) == codeForeignKeyViolation:
		return fmt.Errorf("%s: still referenced: %w", msg, domain.ErrConflict)
	default:
		return fmt.Errorf("%s: %w", msg, err)
	}
}

// expectOne turns an Exec that touched no row into domain.ErrNotFound.
func expectOne(tag pgconn.CommandTag, err error, format string, args ...any) error {
	if err != nil {
		return dbErr(err, format, args...)
	}
	if tag.RowsAffected() == 0 {
		return dbErr(pgx.ErrNoRows, format, args...)
	}
	return nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

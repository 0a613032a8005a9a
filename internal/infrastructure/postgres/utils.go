package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// queryError añade la operación y, si es un error del servidor, su código SQLSTATE.
// Las cancelaciones del contexto se devuelven sin adornos para que el llamador las reconozca.
func queryError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s: [%s] %s: %w", op, pgErr.Code, pgErr.Message, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isUndefinedTable 42P01: el esquema no tiene la tabla esperada (migración pendiente).
func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}

package logging

import (
	"database/sql"
	"errors"
	"io"

	"github.com/rs/zerolog"

	"github.com/skdltmxn/classsort/host"
)

// Rollbacker is anything with an edit scope to abandon.
type Rollbacker interface {
	Rollback() error
}

// DeferClose closes closer and logs a failure instead of dropping it.
func DeferClose(logger zerolog.Logger, closer io.Closer, msg string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Warn().Err(err).Msg(msg)
	}
}

// DeferRollback rolls tx back and logs a failure. A transaction that was
// already committed is not an error.
func DeferRollback(logger zerolog.Logger, tx Rollbacker) {
	if tx == nil {
		return
	}
	err := tx.Rollback()
	if err == nil || errors.Is(err, sql.ErrTxDone) || errors.Is(err, host.ErrTxDone) {
		return
	}
	logger.Warn().Err(err).Msg("transaction rollback failed")
}

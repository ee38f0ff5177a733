package repositories

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/database"
)

// internalError logs err and returns the generic 500 the API exposes.
func internalError(ctx context.Context, logger ectologger.Logger, err error, fields map[string]any, message string) error {
	logger.WithContext(ctx).WithError(err).WithFields(fields).Error(message)
	return httperror.NewHTTPError(http.StatusInternalServerError, message)
}

// NotFound returns a 404 HTTP error with a descriptive message
func NotFound(format string, args ...any) error {
	return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf(format, args...))
}

// Repository is the shared base of the postgres repositories.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Conn returns the transaction open on ctx, or the pool.
func (r *Repository) Conn(ctx context.Context) database.Queryer {
	return database.Conn(ctx, r.db)
}

func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithTx(ctx, fn)
}

package db

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	DBConnKey  contextKey = "db_conn"
	SessionKey contextKey = "db_session"
)

// rollbackTimeout bounds the rollback issued on the way out of a request whose
// context may already be cancelled.
const rollbackTimeout = 5 * time.Second

// Session is one request's unit of work, the transaction opened on the
// request's pooled connection. The middleware that creates it also ends it,
// so handlers only ever Commit early.
type Session struct {
	mu     sync.Mutex
	tx     pgx.Tx
	closed bool
}

// Tx returns the open transaction, or nil once the session is closed.
func (s *Session) Tx() pgx.Tx {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.tx
}

// Commit commits the transaction. Committing a closed session is a no-op so
// handlers and the middleware may both call it.
func (s *Session) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit scoped session: %w", err)
	}
	return nil
}

// Rollback aborts the transaction unless it was already committed.
func (s *Session) Rollback(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback scoped session: %w", err)
	}
	return nil
}

// ScopedSession acquires a connection and begins a transaction for every
// request. The transaction is committed when the handler succeeds with a
// non-error status and rolled back otherwise; the connection is always
// released before the middleware returns.
func ScopedSession(pool *pgxpool.Pool, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			conn, err := pool.Acquire(ctx)
			if err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
			}
			defer conn.Release()

			tx, err := conn.Begin(ctx)
			if err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
			}
			sess := &Session{tx: tx}
			defer func() {
				rctx, cancel := context.WithTimeout(context.Background(), rollbackTimeout)
				defer cancel()
				if err := sess.Rollback(rctx); err != nil {
					logger.Error().Err(err).Str("path", c.Request().URL.Path).Msg("scoped session rollback failed")
				}
			}()

			ctx = context.WithValue(ctx, DBConnKey, conn)
			ctx = context.WithValue(ctx, SessionKey, sess)
			c.SetRequest(c.Request().WithContext(ctx))

			if err := next(c); err != nil {
				return err
			}
			if c.Response().Status >= http.StatusBadRequest {
				return nil
			}
			if err := sess.Commit(ctx); err != nil {
				logger.Error().Err(err).Str("path", c.Request().URL.Path).Msg("scoped session commit failed")
				return echo.NewHTTPError(http.StatusInternalServerError, "failed to save changes")
			}
			return nil
		}
	}
}

// ConnFromContext retrieves the request-scoped database connection from context.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	conn, _ := ctx.Value(DBConnKey).(*pgxpool.Conn)
	return conn
}

// SessionFromContext retrieves the request's scoped session, if any.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(SessionKey).(*Session)
	return sess
}

// TxFromContext returns the open transaction of the request's scoped session.
func TxFromContext(ctx context.Context) pgx.Tx {
	if sess := SessionFromContext(ctx); sess != nil {
		return sess.Tx()
	}
	return nil
}

// Commit commits the scoped session carried by ctx. Without a session it is a
// no-op, which is what the in-memory store relies on.
func Commit(ctx context.Context) error {
	if sess := SessionFromContext(ctx); sess != nil {
		return sess.Commit(ctx)
	}
	return nil
}

// WithSession stores sess in ctx. It exists for callers outside the HTTP
// middleware, such as CLI commands and tests.
func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, SessionKey, sess)
}

// Begin opens a Session on the pool outside of the HTTP middleware.
func Begin(ctx context.Context, pool *pgxpool.Pool) (*Session, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin session: %w", err)
	}
	return &Session{tx: tx}, nil
}

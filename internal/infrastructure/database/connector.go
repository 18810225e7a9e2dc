package database

import (
	"context"
	"database/sql/driver"
	"errors"
)

// dsnConnector adapts a driver that only exposes Open(dsn) to driver.Connector.
type dsnConnector struct {
	dsn    string
	driver driver.Driver
}

func (c *dsnConnector) Connect(_ context.Context) (driver.Conn, error) {
	return c.driver.Open(c.dsn)
}

func (c *dsnConnector) Driver() driver.Driver {
	return c.driver
}

// faultObservingConnector wraps every connection it hands to database/sql so
// that a pooled connection reporting driver.ErrBadConn when it is reused is
// reported through onFault before database/sql discards it.
type faultObservingConnector struct {
	driver.Connector
	onFault func(error)
}

func (c *faultObservingConnector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := c.Connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &observedConn{Conn: conn, onFault: c.onFault}, nil
}

// observedConn forwards the optional driver interfaces to the wrapped
// connection, returning driver.ErrSkip where the wrapped one lacks them.
type observedConn struct {
	driver.Conn
	onFault func(error)
}

// ResetSession is called by database/sql before an idle connection is reused.
func (c *observedConn) ResetSession(ctx context.Context) error {
	r, ok := c.Conn.(driver.SessionResetter)
	if !ok {
		return nil
	}
	err := r.ResetSession(ctx)
	if errors.Is(err, driver.ErrBadConn) {
		c.onFault(err)
	}
	return err
}

// IsValid is called by database/sql before a connection goes back to the pool.
func (c *observedConn) IsValid() bool {
	if v, ok := c.Conn.(driver.Validator); ok {
		if !v.IsValid() {
			c.onFault(driver.ErrBadConn)
			return false
		}
	}
	return true
}

func (c *observedConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if q, ok := c.Conn.(driver.QueryerContext); ok {
		return q.QueryContext(ctx, query, args)
	}
	return nil, driver.ErrSkip
}

func (c *observedConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if e, ok := c.Conn.(driver.ExecerContext); ok {
		return e.ExecContext(ctx, query, args)
	}
	return nil, driver.ErrSkip
}

func (c *observedConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if p, ok := c.Conn.(driver.ConnPrepareContext); ok {
		return p.PrepareContext(ctx, query)
	}
	return c.Conn.Prepare(query)
}

func (c *observedConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if b, ok := c.Conn.(driver.ConnBeginTx); ok {
		return b.BeginTx(ctx, opts)
	}
	return c.Conn.Begin() //nolint:staticcheck // Fallback for drivers without BeginTx
}

func (c *observedConn) Ping(ctx context.Context) error {
	if p, ok := c.Conn.(driver.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (c *observedConn) CheckNamedValue(nv *driver.NamedValue) error {
	if n, ok := c.Conn.(driver.NamedValueChecker); ok {
		return n.CheckNamedValue(nv)
	}
	return driver.ErrSkip
}

// Package dbconn implements the fan-out connection: one handle that proxies
// statements to N destination clusters in lockstep.
package dbconn

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PerMember marks a slice of per-connection bind arguments: the i-th
// element is sent to the i-th member instead of being broadcast to all.
// Used so that each destination can be addressed with distinct bind
// values in a single fan-out call. DDL that needs a distinct literal per
// destination, such as a replication slot name, goes through ExecEach.
type PerMember [][]any

// MultiConn wraps an ordered list of per-cluster connections and proxies
// statements to all of them in cluster order.
type MultiConn struct {
	conns []*pgx.Conn
	hosts []string
	txs   []pgx.Tx
}

// NewMultiConn opens one connection per DSN, in order, and extracts a
// "host=..." tag from each DSN for metrics.
func NewMultiConn(ctx context.Context, dsns []string) (*MultiConn, error) {
	conns := make([]*pgx.Conn, 0, len(dsns))
	hosts := make([]string, 0, len(dsns))

	for i, dsn := range dsns {
		conn, err := pgx.Connect(ctx, dsn)
		if err != nil {
			for _, c := range conns {
				_ = c.Close(ctx)
			}
			return nil, fmt.Errorf("connecting to destination %d: %w", i, err)
		}
		conns = append(conns, conn)

		host, herr := hostTag(dsn)
		if herr != nil {
			host = fmt.Sprintf("host=unknown-%d", i)
		}
		hosts = append(hosts, host)
	}

	return &MultiConn{conns: conns, hosts: hosts}, nil
}

func hostTag(dsn string) (string, error) {
	cfg, err := pgconn.ParseConfig(dsn)
	if err != nil {
		return "", err
	}
	return "host=" + cfg.Host, nil
}

// Len reports the number of fanned-out connections.
func (m *MultiConn) Len() int {
	return len(m.conns)
}

// Hosts returns the "host=..." tag for each member, in cluster order.
func (m *MultiConn) Hosts() []string {
	out := make([]string, len(m.hosts))
	copy(out, m.hosts)
	return out
}

func argsFor(params any, i int) ([]any, error) {
	switch p := params.(type) {
	case nil:
		return nil, nil
	case []any:
		return p, nil
	case PerMember:
		if i >= len(p) {
			return nil, fmt.Errorf("per-member params has %d entries, need %d", len(p), i+1)
		}
		return p[i], nil
	default:
		return nil, fmt.Errorf("unsupported params type %T", params)
	}
}

func (m *MultiConn) execOne(ctx context.Context, i int, sql string, args []any) (pgconn.CommandTag, error) {
	if m.txs != nil && m.txs[i] != nil {
		return m.txs[i].Exec(ctx, sql, args...)
	}
	return m.conns[i].Exec(ctx, sql, args...)
}

// Exec broadcasts sql to every member. params is nil, a []any applied to
// every member, or a PerMember slice whose i-th element is applied to the
// i-th member.
func (m *MultiConn) Exec(ctx context.Context, sql string, params any) error {
	for i := range m.conns {
		args, err := argsFor(params, i)
		if err != nil {
			return err
		}
		if _, err := m.execOne(ctx, i, sql, args); err != nil {
			return fmt.Errorf("exec on %s: %w", m.hosts[i], err)
		}
	}
	return nil
}

// ExecEach runs a distinct, already-built SQL statement against each
// member, in order. Used for DDL that cannot carry bind parameters (e.g.
// CREATE SUBSCRIPTION), where each destination needs its own literal
// values (a distinct replication slot name) baked into the statement text.
func (m *MultiConn) ExecEach(ctx context.Context, sqlPerMember []string) error {
	if len(sqlPerMember) != len(m.conns) {
		return fmt.Errorf("ExecEach: got %d statements for %d members", len(sqlPerMember), len(m.conns))
	}
	for i, stmt := range sqlPerMember {
		if _, err := m.execOne(ctx, i, stmt, nil); err != nil {
			return fmt.Errorf("exec on %s: %w", m.hosts[i], err)
		}
	}
	return nil
}

// FetchOne runs sql against every member and scans exactly one row from
// each with scan, returning results aligned with cluster order. It is a
// free function (not a method) because Go methods cannot carry their own
// type parameters.
func FetchOne[T any](ctx context.Context, m *MultiConn, sql string, args []any, scan func(pgx.Row) (T, error)) ([]T, error) {
	out := make([]T, len(m.conns))
	for i, c := range m.conns {
		row := c.QueryRow(ctx, sql, args...)
		v, err := scan(row)
		if err != nil {
			return nil, fmt.Errorf("fan-out query on %s: %w", m.hosts[i], err)
		}
		out[i] = v
	}
	return out, nil
}

// Begin opens a transaction on every member. It is the fan-out analogue of
// "set_autocommit(false)".
func (m *MultiConn) Begin(ctx context.Context) error {
	txs := make([]pgx.Tx, len(m.conns))
	for i, c := range m.conns {
		tx, err := c.Begin(ctx)
		if err != nil {
			for j := 0; j < i; j++ {
				_ = txs[j].Rollback(ctx)
			}
			return fmt.Errorf("begin on %s: %w", m.hosts[i], err)
		}
		txs[i] = tx
	}
	m.txs = txs
	return nil
}

// Commit commits the open transaction on every member, if any is open.
func (m *MultiConn) Commit(ctx context.Context) error {
	if m.txs == nil {
		return nil
	}
	for i, tx := range m.txs {
		if tx == nil {
			continue
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit on %s: %w", m.hosts[i], err)
		}
	}
	m.txs = nil
	return nil
}

// Rollback rolls back the open transaction on every member, if any is
// open. Errors are best-effort: a connection that is already closed or
// whose transaction already finished is not fatal during teardown.
func (m *MultiConn) Rollback(ctx context.Context) {
	if m.txs == nil {
		return
	}
	for _, tx := range m.txs {
		if tx != nil {
			_ = tx.Rollback(ctx)
		}
	}
	m.txs = nil
}

// SetAutocommit toggles explicit transaction mode across every member.
func (m *MultiConn) SetAutocommit(ctx context.Context, on bool) error {
	if on {
		return m.Commit(ctx)
	}
	return m.Begin(ctx)
}

// Close closes every member connection, best-effort.
func (m *MultiConn) Close(ctx context.Context) error {
	var firstErr error
	for _, c := range m.conns {
		if err := c.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

package notifier

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxListener implements Listener on a dedicated connection acquired from a
// pgx pool. The connection is held for the lifetime of the listener; LISTEN
// subscriptions do not survive across pool connections.
type PgxListener struct {
	pool *pgxpool.Pool

	mu     sync.Mutex
	conn   *pgxpool.Conn
	closed bool
}

// NewPgxListener creates a listener using the provided connection pool.
func NewPgxListener(pool *pgxpool.Pool) *PgxListener {
	return &PgxListener{pool: pool}
}

// Listen starts listening on the specified channel.
func (l *PgxListener) Listen(ctx context.Context, channel string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		conn, err := l.pool.Acquire(ctx)
		if err != nil {
			return err
		}
		l.conn = conn
	}

	// Channel names are fixed constants, not user input.
	_, err := l.conn.Exec(ctx, "LISTEN "+channel)
	return err
}

// WaitForNotification waits for a notification on any subscribed channel.
func (l *PgxListener) WaitForNotification(ctx context.Context) (*Notification, error) {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()

	if conn == nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	notification, err := conn.Conn().WaitForNotification(ctx)
	if err != nil {
		return nil, err
	}

	return &Notification{
		Channel: notification.Channel,
		Payload: notification.Payload,
	}, nil
}

// Close releases the dedicated connection.
func (l *PgxListener) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	if l.conn != nil {
		l.conn.Release()
		l.conn = nil
	}

	return nil
}

// PgxSender implements Sender through the shared pool.
type PgxSender struct {
	pool *pgxpool.Pool
}

// NewPgxSender creates a sender on the given pool.
func NewPgxSender(pool *pgxpool.Pool) *PgxSender {
	return &PgxSender{pool: pool}
}

// Notify sends a NOTIFY on the specified channel.
func (s *PgxSender) Notify(ctx context.Context, channel, payload string) error {
	_, err := s.pool.Exec(ctx, "SELECT pg_notify($1, $2)", channel, payload)
	return err
}

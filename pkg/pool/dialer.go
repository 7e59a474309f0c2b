package pool

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver
	"github.com/leapstack-labs/leapshard/pkg/shard"
)

// Dialer establishes a physical connection to a shard's database.
// Implementations must not pool or retry; the caller owns both policies.
type Dialer interface {
	Dial(ctx context.Context, s *shard.Shard) (*sql.DB, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, s *shard.Shard) (*sql.DB, error)

func (f DialerFunc) Dial(ctx context.Context, s *shard.Shard) (*sql.DB, error) {
	return f(ctx, s)
}

// PgxDialer dials PostgreSQL shards through the pgx stdlib driver.
type PgxDialer struct {
	Logger *slog.Logger
}

// Dial opens and pings a connection built from the shard's descriptor.
func (d *PgxDialer) Dial(ctx context.Context, s *shard.Shard) (*sql.DB, error) {
	dsn := buildDSN(s.Descriptor)

	if d.Logger != nil {
		d.Logger.Debug("dialing shard",
			slog.String("shard", s.Name),
			slog.String("host", s.Descriptor.Host),
			slog.String("database", s.Descriptor.Database))
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection to shard %s: %w", s.Name, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping shard %s: %w", s.Name, err)
	}
	return db, nil
}

// buildDSN constructs a key=value connection string from a descriptor.
func buildDSN(desc shard.Descriptor) string {
	host := desc.Host
	if host == "" {
		host = "localhost"
	}
	port := desc.Port
	if port == 0 {
		port = 5432
	}

	sslmode := "disable"
	if desc.Options != nil {
		if mode, ok := desc.Options["sslmode"]; ok {
			sslmode = mode
		}
	}

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s", host, port, desc.Database, sslmode)
	if desc.Username != "" {
		dsn += fmt.Sprintf(" user=%s", desc.Username)
	}
	if desc.Password != "" {
		dsn += fmt.Sprintf(" password=%s", desc.Password)
	}
	for key, val := range desc.Options {
		if key == "sslmode" {
			continue
		}
		dsn += fmt.Sprintf(" %s=%s", key, val)
	}
	return dsn
}

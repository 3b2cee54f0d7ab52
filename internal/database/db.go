package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Params describes a MySQL connection. Pool knobs default when zero.
type Params struct {
	User string
	Pass string // empty allowed
	Host string
	Port string
	Name string

	MaxConns     int           // open and idle cap, default 10
	ConnLifetime time.Duration // recycle age, default 30m
}

// Open connects to MySQL and verifies the connection before anything else
// touches the pool. The DSN forces utf8mb4 (titles and venues are mostly
// Cyrillic) and parseTime with loc=UTC, so DATETIME columns scan into
// time.Time in UTC and the due-reminder comparison never crosses zones.
func Open(ctx context.Context, p Params) (*sql.DB, error) {
	auth := p.User
	if p.Pass != "" {
		auth = fmt.Sprintf("%s:%s", p.User, p.Pass)
	}
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, p.Host, p.Port, p.Name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	maxConns := p.MaxConns
	if maxConns <= 0 {
		maxConns = 10
	}
	lifetime := p.ConnLifetime
	if lifetime <= 0 {
		lifetime = 30 * time.Minute
	}
	// The bot's load is a handful of conversations plus one scheduler tick,
	// so the pool stays small.
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(lifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

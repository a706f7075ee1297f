package protocol

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"raider/internal/core/scanner/brute"

	"github.com/lib/pq"
)

// PostgresCracker PostgreSQL 协议爆破器
type PostgresCracker struct{}

func NewPostgresCracker() *PostgresCracker {
	return &PostgresCracker{}
}

func (c *PostgresCracker) Name() string {
	return "postgres"
}

func (c *PostgresCracker) Mode() brute.AuthMode {
	return brute.AuthModeUserPass
}

func (c *PostgresCracker) Check(ctx context.Context, host string, port int, auth brute.Auth) (bool, error) {
	// sslmode=disable 兼容旧版并加快爆破
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/postgres?sslmode=disable&connect_timeout=3",
		auth.Username, auth.Password, host, port)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return false, fmt.Errorf("invalid dsn: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return c.handleError(err)
	}
	return true, nil
}

// handleError 解析 PostgreSQL 错误码
func (c *PostgresCracker) handleError(err error) (bool, error) {
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "28P01": // invalid_password
			return false, nil
		case "28000": // invalid_authorization_specification
			return false, nil
		case "53300": // too_many_connections
			return false, brute.ErrConnectionFailed
		}
	}

	errMsg := err.Error()
	if strings.Contains(errMsg, "timeout") ||
		strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "no such host") {
		return false, brute.ErrConnectionFailed
	}

	return false, brute.ErrProtocolError
}

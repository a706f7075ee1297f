package protocol

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"raider/internal/core/scanner/brute"

	"github.com/go-sql-driver/mysql"
)

// MySQLCracker 实现 MySQL 协议爆破
type MySQLCracker struct{}

func NewMySQLCracker() *MySQLCracker {
	return &MySQLCracker{}
}

func (c *MySQLCracker) Name() string {
	return "mysql"
}

func (c *MySQLCracker) Mode() brute.AuthMode {
	return brute.AuthModeUserPass
}

// Check 验证 MySQL 凭据
func (c *MySQLCracker) Check(ctx context.Context, host string, port int, auth brute.Auth) (bool, error) {
	// 不指定 dbname，连接默认库; timeout 是 DSN 控制的 TCP 超时
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/?timeout=3s&readTimeout=3s",
		auth.Username, auth.Password, host, port)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return false, c.handleError(err)
	}
	defer db.Close()

	db.SetConnMaxLifetime(time.Second * 5)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(0)

	// PingContext 才会真正建连
	if err := db.PingContext(ctx); err != nil {
		return false, c.handleError(err)
	}
	return true, nil
}

// handleError 将底层错误转换为标准错误
func (c *MySQLCracker) handleError(err error) error {
	if driverErr, ok := err.(*mysql.MySQLError); ok {
		switch driverErr.Number {
		case 1045, 1044: // Access denied
			return nil
		}
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "access denied") {
		return nil
	}

	if strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no route to host") ||
		strings.Contains(msg, "network is unreachable") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "bad connection") ||
		err == mysql.ErrInvalidConn {
		return brute.ErrConnectionFailed
	}

	return brute.ErrProtocolError
}

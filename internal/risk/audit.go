package risk

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/betbot/riskcore/internal/metrics"
)

// AuditEntry 一条审计记录：状态转移（熔断、重置、结算、对账）的前后快照。
type AuditEntry struct {
	ID          string    `json:"id"`
	EventType   string    `json:"event_type"`
	Actor       string    `json:"actor"`
	Action      string    `json:"action"`
	Details     string    `json:"details,omitempty"`
	StateBefore *Ledger   `json:"state_before,omitempty"`
	StateAfter  *Ledger   `json:"state_after,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// AuditLog 只追加的审计日志（SQLite）。
// 写入失败记日志后吞掉：审计绝不能阻断或失败它所审计的操作。
type AuditLog struct {
	db *sql.DB
}

// OpenAuditLog 打开（或创建）审计库
func OpenAuditLog(path string) (*AuditLog, error) {
	if path == "" {
		return nil, fmt.Errorf("audit: db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("audit: mkdir db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite：单连接更稳定
	db.SetMaxIdleConns(1)

	a := &AuditLog{db: db}
	if err := a.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func (a *AuditLog) migrate() error {
	_, err := a.db.Exec(`
CREATE TABLE IF NOT EXISTS audit_log (
	id           TEXT PRIMARY KEY,
	event_type   TEXT NOT NULL,
	actor        TEXT NOT NULL,
	action       TEXT NOT NULL,
	details      TEXT NOT NULL DEFAULT '',
	state_before TEXT,
	state_after  TEXT,
	created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_created_at ON audit_log(created_at);
`)
	if err != nil {
		return fmt.Errorf("audit: migrate: %w", err)
	}
	return nil
}

// Close 关闭审计库
func (a *AuditLog) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Append 追加一条审计记录。失败只记日志（审计不得影响被审计操作）。
func (a *AuditLog) Append(entry AuditEntry) {
	if a == nil || a.db == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	before := marshalLedger(entry.StateBefore)
	after := marshalLedger(entry.StateAfter)

	_, err := a.db.Exec(
		`INSERT INTO audit_log (id, event_type, actor, action, details, state_before, state_after, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.EventType, entry.Actor, entry.Action, entry.Details,
		before, after, entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		metrics.AuditAppendErrors.Add(1)
		log.Errorf("审计写入失败（已忽略）: type=%s err=%v", entry.EventType, err)
		return
	}
	metrics.AuditAppends.Add(1)
}

// Recent 按时间倒序返回最近的审计记录（操作台用）
func (a *AuditLog) Recent(limit int) ([]AuditEntry, error) {
	if a == nil || a.db == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := a.db.Query(
		`SELECT id, event_type, actor, action, details, state_before, state_after, created_at
		 FROM audit_log ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var before, after sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.EventType, &e.Actor, &e.Action, &e.Details, &before, &after, &createdAt); err != nil {
			return nil, err
		}
		e.StateBefore = unmarshalLedger(before)
		e.StateAfter = unmarshalLedger(after)
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			e.CreatedAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func marshalLedger(l *Ledger) sql.NullString {
	if l == nil {
		return sql.NullString{}
	}
	b, err := json.Marshal(l)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func unmarshalLedger(s sql.NullString) *Ledger {
	if !s.Valid || s.String == "" {
		return nil
	}
	var l Ledger
	if err := json.Unmarshal([]byte(s.String), &l); err != nil {
		return nil
	}
	return &l
}

// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/llm"

	_ "modernc.org/sqlite"
)

const (
	sessionTable = "sessions"
	messageTable = "session_messages"
)

// SQLiteStore persists sessions in a SQLite database. State is stored as
// JSON, so state values read back are JSON-native types.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens the database at dsn and ensures the schema.
func OpenSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, kerrors.New(kerrors.CodeConfiguration, "open session database", err).WithContext("dsn", dsn)
	}
	// A single connection serializes writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)
	store, err := NewSQLiteStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStore creates a SQLite-backed store and ensures schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, kerrors.New(kerrors.CodeConfiguration, "db is nil", nil)
	}
	if err := ensureSchema(db); err != nil {
		return nil, kerrors.New(kerrors.CodeMemoryError, "create session schema", err)
	}
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			app_name TEXT NOT NULL,
			user_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			state_json BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY(app_name, user_id, session_id)
		);`, sessionTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			app_name TEXT NOT NULL,
			user_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			author TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			tool_call_id TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);`, messageTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_session ON %s(app_name, user_id, session_id);`, messageTable, messageTable),
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Create implements Store.
func (s *SQLiteStore) Create(ctx context.Context, key Key, initialState map[string]any) (*Session, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	state := initialState
	if state == nil {
		state = map[string]any{}
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return nil, kerrors.New(kerrors.CodeInvalidInput, "encode session state", err)
	}
	now := s.now().UnixMilli()
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT OR IGNORE INTO %s (app_name, user_id, session_id, state_json, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`, sessionTable),
		key.AppName, key.UserID, key.SessionID, payload, now, now)
	if err != nil {
		return nil, storeErr("create session", err)
	}
	return s.Get(ctx, key)
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, key Key) (*Session, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT state_json, created_at, updated_at FROM %s
			WHERE app_name = ? AND user_id = ? AND session_id = ?`, sessionTable),
		key.AppName, key.UserID, key.SessionID)
	sess, err := scanSession(row, key)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messages(ctx, key)
	if err != nil {
		return nil, err
	}
	sess.Messages = msgs
	return sess, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner, key Key) (*Session, error) {
	var (
		payload          []byte
		created, updated int64
	)
	if err := row.Scan(&payload, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound(key)
		}
		return nil, storeErr("load session", err)
	}
	state, err := decodeState(payload)
	if err != nil {
		return nil, kerrors.New(kerrors.CodeMemoryError, "decode session state", err).WithContext("session", key.String())
	}
	return &Session{
		Key:       key,
		State:     state,
		CreatedAt: time.UnixMilli(created).UTC(),
		UpdatedAt: time.UnixMilli(updated).UTC(),
	}, nil
}

// decodeState restores a state map written by json.Marshal. Integral numbers
// come back as int64 so values above 2^53 keep their precision; other
// numbers come back as float64.
func decodeState(payload []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	state := map[string]any{}
	if err := dec.Decode(&state); err != nil {
		return nil, err
	}
	for k, v := range state {
		state[k] = restoreNumbers(v)
	}
	return state, nil
}

func restoreNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if n, err := strconv.ParseInt(val.String(), 10, 64); err == nil {
			return n
		}
		f, _ := val.Float64()
		return f
	case map[string]any:
		for k, item := range val {
			val[k] = restoreNumbers(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = restoreNumbers(item)
		}
		return val
	default:
		return v
	}
}

func (s *SQLiteStore) messages(ctx context.Context, key Key) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, role, author, content, tool_call_id, created_at FROM %s
			WHERE app_name = ? AND user_id = ? AND session_id = ? ORDER BY seq`, messageTable),
		key.AppName, key.UserID, key.SessionID)
	if err != nil {
		return nil, storeErr("load messages", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			m       Message
			role    string
			created int64
		)
		if err := rows.Scan(&m.ID, &role, &m.Author, &m.Content, &m.ToolCallID, &created); err != nil {
			return nil, storeErr("scan message", err)
		}
		m.Role = llm.Role(role)
		m.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate messages", err)
	}
	return out, nil
}

// GetOrCreate implements Store.
func (s *SQLiteStore) GetOrCreate(ctx context.Context, key Key) (*Session, error) {
	return s.Create(ctx, key, nil)
}

// AppendMessages implements Store.
func (s *SQLiteStore) AppendMessages(ctx context.Context, key Key, msgs ...Message) error {
	if err := key.Validate(); err != nil {
		return err
	}
	now := s.now()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := touch(ctx, tx, key, now); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (id, app_name, user_id, session_id, role, author, content, tool_call_id, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, messageTable))
		if err != nil {
			return storeErr("prepare message insert", err)
		}
		defer stmt.Close()
		for _, m := range prepare(msgs, now) {
			if _, err := stmt.ExecContext(ctx, m.ID, key.AppName, key.UserID, key.SessionID,
				string(m.Role), m.Author, m.Content, m.ToolCallID, m.CreatedAt.UnixMilli()); err != nil {
				return storeErr("insert message", err)
			}
		}
		return nil
	})
}

// UpdateState implements Store.
func (s *SQLiteStore) UpdateState(ctx context.Context, key Key, delta map[string]any) error {
	if err := key.Validate(); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT state_json, created_at, updated_at FROM %s
				WHERE app_name = ? AND user_id = ? AND session_id = ?`, sessionTable),
			key.AppName, key.UserID, key.SessionID)
		sess, err := scanSession(row, key)
		if err != nil {
			return err
		}
		for k, v := range delta {
			sess.State[k] = v
		}
		payload, err := json.Marshal(sess.State)
		if err != nil {
			return kerrors.New(kerrors.CodeInvalidInput, "encode session state", err)
		}
		_, err = tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %s SET state_json = ?, updated_at = ?
				WHERE app_name = ? AND user_id = ? AND session_id = ?`, sessionTable),
			payload, s.now().UnixMilli(), key.AppName, key.UserID, key.SessionID)
		if err != nil {
			return storeErr("update session state", err)
		}
		return nil
	})
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, appName, userID string) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT session_id FROM %s WHERE app_name = ? AND user_id = ?
			ORDER BY created_at, session_id`, sessionTable),
		appName, userID)
	if err != nil {
		return nil, storeErr("list sessions", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, storeErr("scan session id", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate sessions", err)
	}

	out := make([]*Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.Get(ctx, Key{AppName: appName, UserID: userID, SessionID: id})
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, key Key) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE app_name = ? AND user_id = ? AND session_id = ?`, sessionTable),
			key.AppName, key.UserID, key.SessionID)
		if err != nil {
			return storeErr("delete session", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return notFound(key)
		}
		_, err = tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE app_name = ? AND user_id = ? AND session_id = ?`, messageTable),
			key.AppName, key.UserID, key.SessionID)
		if err != nil {
			return storeErr("delete messages", err)
		}
		return nil
	})
}

func touch(ctx context.Context, tx *sql.Tx, key Key, now time.Time) error {
	res, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET updated_at = ? WHERE app_name = ? AND user_id = ? AND session_id = ?`, sessionTable),
		now.UnixMilli(), key.AppName, key.UserID, key.SessionID)
	if err != nil {
		return storeErr("touch session", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(key)
	}
	return nil
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin transaction", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeErr("commit transaction", err)
	}
	return nil
}

func storeErr(msg string, err error) error {
	if kerrors.Is(err, kerrors.CodeNotFound) {
		return err
	}
	return kerrors.New(kerrors.CodeMemoryError, msg, err)
}

var _ Store = (*SQLiteStore)(nil)

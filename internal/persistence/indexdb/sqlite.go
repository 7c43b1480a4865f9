package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"hemoclast.online/internal/sim/catalogs"
	"hemoclast.online/internal/sim/loot"
	"hemoclast.online/internal/sim/tuning"
)

// SQLiteRoster is a secondary read-model of party membership and resume
// sessions. The table loop never reads it; losing it costs nothing but
// reconnect tokens.
type SQLiteRoster struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqMember reqKind = iota + 1
	reqSession
)

type req struct {
	kind reqKind

	member  loot.MemberRecord
	session sessionRow
}

type sessionRow struct {
	Token     string
	MemberID  string
	UpdatedAt string
}

func OpenSQLite(path string) (*SQLiteRoster, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteRoster{
		db: db,
		ch: make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS members (
			member_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			class TEXT NOT NULL,
			level INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			member_id TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_member ON sessions(member_id);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteRoster) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteRoster) UpsertMember(rec loot.MemberRecord) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqMember, member: rec}:
	default:
		// Drop if the writer falls behind; the journal remains the source of truth.
	}
	return nil
}

func (s *SQLiteRoster) SaveSession(token, memberID string) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	r := sessionRow{
		Token:     token,
		MemberID:  memberID,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqSession, session: r}:
	default:
	}
	return nil
}

// UpsertCatalogs records the catalog and tuning the run was started
// with, keyed by digest, so an operator can tell which palette a given
// roster file belongs to.
func (s *SQLiteRoster) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if configDir != "" {
		if b, err := os.ReadFile(filepath.Join(configDir, "items.json")); err == nil && len(b) > 0 {
			rows = append(rows, kv{name: "items_defs", digest: cats.Items.DefsDigest, json: b})
		}
	}
	if b, _ := json.Marshal(cats.Items.Palette); len(b) > 0 {
		rows = append(rows, kv{name: "items_palette", digest: cats.Items.PaletteDigest, json: b})
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Members returns the recorded party roster sorted by member id.
func (s *SQLiteRoster) Members() ([]loot.MemberRecord, error) {
	rows, err := s.db.Query(`SELECT member_id, name, class, level FROM members ORDER BY member_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []loot.MemberRecord
	for rows.Next() {
		var r loot.MemberRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.Class, &r.Level); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SessionMember resolves a resume token to a member id.
func (s *SQLiteRoster) SessionMember(token string) (string, error) {
	var id string
	err := s.db.QueryRow(`SELECT member_id FROM sessions WHERE token = ?`, token).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return id, err
}

func (s *SQLiteRoster) loop() {
	insertMember, _ := s.db.Prepare(`INSERT OR REPLACE INTO members(member_id,name,class,level,updated_at) VALUES(?,?,?,?,?)`)
	insertSession, _ := s.db.Prepare(`INSERT OR REPLACE INTO sessions(token,member_id,updated_at) VALUES(?,?,?)`)
	defer func() {
		if insertMember != nil {
			_ = insertMember.Close()
		}
		if insertSession != nil {
			_ = insertSession.Close()
		}
	}()

	for r := range s.ch {
		switch r.kind {
		case reqMember:
			if insertMember == nil {
				continue
			}
			now := time.Now().UTC().Format(time.RFC3339Nano)
			_, _ = insertMember.Exec(r.member.ID, r.member.Name, r.member.Class, r.member.Level, now)
		case reqSession:
			if insertSession == nil {
				continue
			}
			_, _ = insertSession.Exec(r.session.Token, r.session.MemberID, r.session.UpdatedAt)
		}
	}
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/HsiangNianian/gamehub/internal/protocol"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS favorites (
  user_id    TEXT NOT NULL,
  game_id    TEXT NOT NULL,
  created_at INTEGER NOT NULL,
  PRIMARY KEY (user_id, game_id)
);
CREATE TABLE IF NOT EXISTS ratings (
  user_id TEXT NOT NULL,
  game_id TEXT NOT NULL,
  rating  INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
  PRIMARY KEY (user_id, game_id)
);
CREATE TABLE IF NOT EXISTS achievements (
  seq            INTEGER PRIMARY KEY AUTOINCREMENT,
  user_id        TEXT NOT NULL,
  game_id        TEXT NOT NULL,
  achievement_id TEXT NOT NULL,
  data           TEXT NOT NULL,
  UNIQUE (user_id, game_id, achievement_id)
);
CREATE TABLE IF NOT EXISTS progress (
  user_id    TEXT NOT NULL,
  game_id    TEXT NOT NULL,
  snapshot   TEXT NOT NULL,
  updated_at INTEGER NOT NULL,
  PRIMARY KEY (user_id, game_id)
);
CREATE TABLE IF NOT EXISTS users (
  user_id TEXT PRIMARY KEY,
  data    TEXT NOT NULL
);
`

// SQLiteStore persists preferences in a SQLite file.
type SQLiteStore struct {
	sqlDB *sql.DB
}

// OpenSQLite opens the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(sqliteSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *SQLiteStore) Favorites(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT game_id FROM favorites WHERE user_id = ? ORDER BY created_at, rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("query favorites: %w", err)
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) IsFavorite(ctx context.Context, userID, gameID string) (bool, error) {
	var n int
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM favorites WHERE user_id = ? AND game_id = ?`, userID, gameID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query favorite: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) ToggleFavorite(ctx context.Context, userID, gameID string) (bool, error) {
	if userID == "" || gameID == "" {
		return false, ErrMissingID
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM favorites WHERE user_id = ? AND game_id = ?`, userID, gameID)
	if err != nil {
		return false, fmt.Errorf("delete favorite: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if removed == 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO favorites (user_id, game_id, created_at) VALUES (?, ?, ?)`,
			userID, gameID, time.Now().UTC().UnixNano()); err != nil {
			return false, fmt.Errorf("insert favorite: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return removed == 0, nil
}

func (s *SQLiteStore) Rating(ctx context.Context, userID, gameID string) (int, error) {
	var rating int
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT rating FROM ratings WHERE user_id = ? AND game_id = ?`, userID, gameID).Scan(&rating)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query rating: %w", err)
	}
	return rating, nil
}

func (s *SQLiteStore) Ratings(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT game_id, rating FROM ratings WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query ratings: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var (
			gameID string
			rating int
		)
		if err := rows.Scan(&gameID, &rating); err != nil {
			return nil, err
		}
		out[gameID] = rating
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SetRating(ctx context.Context, userID, gameID string, rating int) error {
	if userID == "" || gameID == "" {
		return ErrMissingID
	}
	if !validRating(rating) {
		return ErrInvalidRating
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO ratings (user_id, game_id, rating) VALUES (?, ?, ?)
		 ON CONFLICT (user_id, game_id) DO UPDATE SET rating = excluded.rating`,
		userID, gameID, rating)
	if err != nil {
		return fmt.Errorf("upsert rating: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AddAchievement(ctx context.Context, userID, gameID string, a protocol.GameAchievement) (bool, error) {
	if userID == "" || gameID == "" {
		return false, ErrMissingID
	}
	data, err := json.Marshal(a)
	if err != nil {
		return false, err
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO achievements (user_id, game_id, achievement_id, data) VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id, game_id, achievement_id) DO NOTHING`,
		userID, gameID, a.ID, string(data))
	if err != nil {
		return false, fmt.Errorf("insert achievement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) Achievements(ctx context.Context, userID, gameID string) ([]protocol.GameAchievement, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT data FROM achievements WHERE user_id = ? AND game_id = ? ORDER BY seq`, userID, gameID)
	if err != nil {
		return nil, fmt.Errorf("query achievements: %w", err)
	}
	defer rows.Close()
	out := []protocol.GameAchievement{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var a protocol.GameAchievement
		if err := json.Unmarshal([]byte(data), &a); err != nil {
			return nil, fmt.Errorf("decode achievement: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SetProgress(ctx context.Context, userID, gameID string, snapshot json.RawMessage) error {
	if userID == "" || gameID == "" {
		return ErrMissingID
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO progress (user_id, game_id, snapshot, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id, game_id) DO UPDATE SET snapshot = excluded.snapshot, updated_at = excluded.updated_at`,
		userID, gameID, string(snapshot), time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Progress(ctx context.Context, userID, gameID string) (json.RawMessage, error) {
	var snapshot string
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT snapshot FROM progress WHERE user_id = ? AND game_id = ?`, userID, gameID).Scan(&snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query progress: %w", err)
	}
	return json.RawMessage(snapshot), nil
}

func (s *SQLiteStore) SetUserInfo(ctx context.Context, info protocol.UserInfo) error {
	if info.ID == "" {
		return ErrMissingID
	}
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO users (user_id, data) VALUES (?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET data = excluded.data`,
		info.ID, string(data))
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UserInfo(ctx context.Context, userID string) (*protocol.UserInfo, error) {
	var data string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT data FROM users WHERE user_id = ?`, userID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	var info protocol.UserInfo
	if err := json.Unmarshal([]byte(data), &info); err != nil {
		return nil, fmt.Errorf("decode user info: %w", err)
	}
	return &info, nil
}

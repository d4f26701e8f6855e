// Package prefs is the small key/value store kept in sqlite, plus the
// history of firmware update attempts.
package prefs

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

//go:embed sql/get-pref.sql
var getPrefSQL string

//go:embed sql/set-pref.sql
var setPrefSQL string

//go:embed sql/insert-update-attempt.sql
var insertUpdateAttemptSQL string

//go:embed sql/get-update-attempts.sql
var getUpdateAttemptsSQL string

const KeyFirmwareVersion = "firmware_version"

type UpdateAttempt struct {
	Version   string
	URL       string
	Outcome   string
	Detail    string
	CreatedAt time.Time
}

type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	RecordAttempt(ctx context.Context, a UpdateAttempt) error
	Attempts(ctx context.Context, limit int) ([]UpdateAttempt, error)
}

type sqliteStore struct {
	db *sql.DB
}

func NewStore(db *sql.DB) Store {
	return &sqliteStore{db: db}
}

func (s *sqliteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, getPrefSQL, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get pref %q: %w", key, err)
	}
	return v, true, nil
}

func (s *sqliteStore) Set(ctx context.Context, key, value string) error {
	if _, err := s.db.ExecContext(ctx, setPrefSQL, key, value); err != nil {
		return fmt.Errorf("set pref %q: %w", key, err)
	}
	return nil
}

func (s *sqliteStore) RecordAttempt(ctx context.Context, a UpdateAttempt) error {
	var detail any
	if a.Detail != "" {
		detail = a.Detail
	}
	if _, err := s.db.ExecContext(ctx, insertUpdateAttemptSQL, a.Version, a.URL, a.Outcome, detail); err != nil {
		return fmt.Errorf("insert update attempt: %w", err)
	}
	return nil
}

func (s *sqliteStore) Attempts(ctx context.Context, limit int) ([]UpdateAttempt, error) {
	rows, err := s.db.QueryContext(ctx, getUpdateAttemptsSQL, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close update attempts rows", "error", err)
		}
	}()

	var out []UpdateAttempt
	for rows.Next() {
		var a UpdateAttempt
		var ts string
		if err := rows.Scan(&a.Version, &a.URL, &a.Outcome, &a.Detail, &ts); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", ts, err)
		}
		a.CreatedAt = t
		out = append(out, a)
	}
	return out, rows.Err()
}

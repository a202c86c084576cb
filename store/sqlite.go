package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/feedpulse/feedpulse/apperr"
)

// SQLite keeps one JSON document per row. Field-equality queries go through
// json_extract, partial updates through json_patch, so every operation stays
// a single statement and per-document atomicity comes from SQLite itself.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

func Open(dbURL string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", dbURL)
	if err != nil {
		return nil, errors.Wrap(err, "store.open")
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "store.pragma")
	}

	// db tuning options
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(2 * time.Hour)

	err = migrateDB(db)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "store.migrate")
	}

	return &SQLite{db: db, now: time.Now}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Create(ctx context.Context, collection string, doc any) (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", errors.Wrap(err, "store.create.id")
	}
	if err := s.put(ctx, collection, id.String(), doc); err != nil {
		return "", err
	}
	return id.String(), nil
}

func (s *SQLite) Put(ctx context.Context, collection, id string, doc any) error {
	return s.put(ctx, collection, id, doc)
}

func (s *SQLite) put(ctx context.Context, collection, id string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "store.put.marshal")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO document (collection, id, data, created_at)
		VALUES (?, ?, json_set(?, '$.id', ?), ?)
		ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data`,
		collection, id, string(data), id, s.now().UTC(),
	)
	if err != nil {
		return errors.Wrapf(apperr.ErrStoreFailure, "put %s/%s: %v", collection, id, err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, collection, id string, out any) error {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM document
		WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&data)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return errors.Wrapf(apperr.ErrNotFound, "%s/%s", collection, id)
	case err != nil:
		return errors.Wrapf(apperr.ErrStoreFailure, "get %s/%s: %v", collection, id, err)
	}

	return errors.Wrap(json.Unmarshal([]byte(data), out), "store.get.unmarshal")
}

func (s *SQLite) Query(ctx context.Context, collection string, filters Filters, out any) error {
	where := []string{"collection = ?"}
	args := []any{collection}
	for field, value := range filters {
		where = append(where, fmt.Sprintf("json_extract(data, '$.%s') = ?", field))
		args = append(args, value)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM document
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY created_at, id`,
		args...,
	)
	if err != nil {
		return errors.Wrapf(apperr.ErrStoreFailure, "query %s: %v", collection, err)
	}
	defer rows.Close()

	docs := []json.RawMessage{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return errors.Wrapf(apperr.ErrStoreFailure, "query %s: scan: %v", collection, err)
		}
		docs = append(docs, json.RawMessage(data))
	}
	if err := rows.Err(); err != nil {
		return errors.Wrapf(apperr.ErrStoreFailure, "query %s: %v", collection, err)
	}

	list, err := json.Marshal(docs)
	if err != nil {
		return errors.Wrap(err, "store.query.marshal")
	}
	return errors.Wrap(json.Unmarshal(list, out), "store.query.unmarshal")
}

func (s *SQLite) Update(ctx context.Context, collection, id string, fields Fields) error {
	patch, err := json.Marshal(fields)
	if err != nil {
		return errors.Wrap(err, "store.update.marshal")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE document
		SET data = json_patch(data, ?)
		WHERE collection = ? AND id = ?`,
		string(patch), collection, id,
	)
	if err != nil {
		return errors.Wrapf(apperr.ErrStoreFailure, "update %s/%s: %v", collection, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(apperr.ErrStoreFailure, "update %s/%s: verify: %v", collection, id, err)
	}
	if n < 1 {
		return errors.Wrapf(apperr.ErrNotFound, "%s/%s", collection, id)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM document
		WHERE collection = ? AND id = ?`,
		collection, id,
	)
	if err != nil {
		return errors.Wrapf(apperr.ErrStoreFailure, "delete %s/%s: %v", collection, id, err)
	}
	return nil
}

package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"moments/models"
)

// Store reads and writes moments in an SQLite database. The schema must have
// been created with Migrate.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := connection(path)
	if err != nil {
		return nil, fmt.Errorf("error opening database %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateMoment stores a new moment and returns it with its assigned id.
// added is truncated to whole seconds, the resolution of the wire format.
func (s *Store) CreateMoment(ctx context.Context, text string, authorName string, added time.Time) (models.Moment, error) {
	added = added.UTC().Truncate(time.Second)

	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertInto("moments").Cols("text", "author_name", "added").Values(text, authorName, added.Unix())
	sql, args := ib.Build()

	result, err := s.db.ExecContext(ctx, sql, args...)
	if err != nil {
		return models.Moment{}, fmt.Errorf("insert error: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return models.Moment{}, fmt.Errorf("insert error: %w", err)
	}

	log.WithFields(log.Fields{
		"id":     id,
		"author": authorName,
		"added":  models.FormatTime(added),
	}).Info("Created moment")

	return models.Moment{Id: id, Text: text, AuthorName: authorName, AddedAt: added}, nil
}

// ListBefore returns up to limit moments with an id lower than beforeId,
// newest first. A beforeId of zero starts at the newest moment.
func (s *Store) ListBefore(ctx context.Context, beforeId int64, limit int) ([]models.Moment, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("id", "text", "author_name", "added").From("moments")
	if beforeId != 0 {
		sb.Where(sb.LessThan("id", beforeId))
	}
	sb.OrderBy("id").Desc()
	sb.Limit(limit)

	return s.query(ctx, sb)
}

// ListSince returns the oldest limit moments added strictly after from,
// ordered newest first. Polling again from the newest one returned walks
// forward without skipping rows.
func (s *Store) ListSince(ctx context.Context, from time.Time, limit int) ([]models.Moment, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("id", "text", "author_name", "added").From("moments")
	sb.Where(sb.GreaterThan("added", from.Unix()))
	sb.OrderBy("added ASC", "id ASC")
	sb.Limit(limit)

	moments, err := s.query(ctx, sb)
	if err != nil {
		return nil, err
	}
	return lo.Reverse(moments), nil
}

func (s *Store) query(ctx context.Context, sb *sqlbuilder.SelectBuilder) ([]models.Moment, error) {
	sql, args := sb.Build()
	log.WithFields(log.Fields{
		"sql":  sql,
		"args": args,
	}).Debug("Generated SQL query")

	rows, err := s.db.QueryContext(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	moments := []models.Moment{}
	for rows.Next() {
		var m models.Moment
		var added int64
		if err := rows.Scan(&m.Id, &m.Text, &m.AuthorName, &added); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		m.AddedAt = time.Unix(added, 0).UTC()
		moments = append(moments, m)
	}

	return moments, rows.Err()
}

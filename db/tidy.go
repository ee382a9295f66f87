package db

import (
	"context"
	"fmt"
	"time"

	sb "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

// Tidy removes moments added before cutoff and returns how many were deleted
func (s *Store) Tidy(ctx context.Context, cutoff time.Time) (int64, error) {
	deleteMoments := sb.SQLite.NewDeleteBuilder()
	sql, args := deleteMoments.DeleteFrom("moments").Where(deleteMoments.LessThan("added", cutoff.Unix())).Build()

	log.WithFields(log.Fields{
		"sql":    sql,
		"args":   args,
		"cutoff": cutoff.UTC().Format(time.RFC3339),
	}).Info("Tidying database")

	result, err := s.db.ExecContext(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("delete error: %w", err)
	}

	return result.RowsAffected()
}

package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/activity"
)

// Rows written before subject_* existed only carry loggable_*.
const activityColumns = `id, log_name, action, description,
	COALESCE(subject_type, loggable_type, '') AS subject_type,
	COALESCE(subject_id, loggable_id, '') AS subject_id,
	causer_id, causer_name, properties, created_at`

type activityRepository struct {
	base
}

var _ activity.Repository = (*activityRepository)(nil) // interface compliance check

func NewActivityRepository(db core.DBExecutor) activity.Repository {
	return &activityRepository{base{db: db}}
}

func (repo *activityRepository) CreateLog(ctx context.Context, log activity.Log, exec ...core.DBExecutor) (activity.Log, error) {
	id, err := insert(ctx, repo.getExec(exec), `
		INSERT INTO activity_log (log_name, action, description, subject_type, subject_id, causer_id, causer_name, properties, created_at)
		VALUES (:log_name, :action, :description, :subject_type, :subject_id, :causer_id, :causer_name, :properties, :created_at)
		RETURNING id`,
		log)
	if err != nil {
		return activity.Log{}, errors.Wrap(err, "inserting activity log")
	}
	log.ID = id
	return log, nil
}

func (repo *activityRepository) QueryLogs(ctx context.Context, filter activity.QueryFilter, exec ...core.DBExecutor) ([]activity.Log, error) {
	var q query
	if filter.SubjectType != "" {
		q.where("COALESCE(subject_type, loggable_type) = ?", filter.SubjectType)
	}
	if filter.SubjectID != "" {
		q.where("COALESCE(subject_id, loggable_id) = ?", filter.SubjectID)
	}
	if filter.CauserID != "" {
		q.where("causer_id::text = ?", filter.CauserID)
	}
	if filter.Action != "" {
		q.where("action = ?", filter.Action)
	}
	suffix := "ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		suffix += " LIMIT ?"
		q.args = append(q.args, filter.Limit)
	}
	stmt, args, err := q.build("SELECT "+activityColumns+" FROM activity_log", suffix)
	if err != nil {
		return nil, err
	}

	logs := make([]activity.Log, 0)
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &logs, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "querying activity logs")
	}
	return logs, nil
}

package dummydb

import (
	"context"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/activity"
)

type activityRepository struct {
	db *DB
}

var _ activity.Repository = (*activityRepository)(nil) // interface compliance check

func NewActivityRepository(db *DB) activity.Repository {
	return &activityRepository{db: db}
}

func (repo *activityRepository) CreateLog(_ context.Context, log activity.Log, _ ...core.DBExecutor) (activity.Log, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	log.ID = repo.db.nextPK("activity_log")
	repo.db.logs = append(repo.db.logs, log)
	return log, nil
}

func (repo *activityRepository) QueryLogs(_ context.Context, filter activity.QueryFilter, _ ...core.DBExecutor) ([]activity.Log, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	logs := make([]activity.Log, 0)
	for i := len(repo.db.logs) - 1; i >= 0; i-- {
		log := repo.db.logs[i]
		switch {
		case filter.SubjectType != "" && log.SubjectType != filter.SubjectType:
			continue
		case filter.SubjectID != "" && log.SubjectID != filter.SubjectID:
			continue
		case filter.CauserID != "" && !strPtrEquals(log.CauserID, filter.CauserID):
			continue
		case filter.Action != "" && log.Action != filter.Action:
			continue
		}
		logs = append(logs, log)
		if filter.Limit > 0 && len(logs) == filter.Limit {
			break
		}
	}
	return logs, nil
}

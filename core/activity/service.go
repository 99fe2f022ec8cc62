package activity

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
)

const (
	DefaultLogName = "default"
	defaultLimit   = 100
	maxLimit       = 1000
)

// NowFunc is overridden in tests.
var NowFunc = time.Now

type (
	Repository interface {
		CreateLog(ctx context.Context, log Log, exec ...core.DBExecutor) (Log, error)
		// QueryLogs returns the most recent entries first.
		QueryLogs(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]Log, error)
	}

	// Recorder is the write side of the activity log; domain services depend on it only.
	Recorder interface {
		Record(ctx context.Context, entry Entry, exec ...core.DBExecutor) error
	}

	Service interface {
		Recorder
		Query(ctx context.Context, filter QueryFilter) ([]Log, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

// Record appends entry, attributing it to the actor held by ctx (if any).
// Passing the transaction executor keeps the entry atomic with the change it describes.
func (svc *service) Record(ctx context.Context, entry Entry, exec ...core.DBExecutor) error {
	log := Log{
		LogName:     entry.LogName,
		Action:      entry.Action,
		Description: entry.Description,
		SubjectType: entry.SubjectType,
		SubjectID:   entry.SubjectID,
		Properties:  entry.Properties,
		CreatedAt:   NowFunc().UTC(),
	}
	if log.LogName == "" {
		log.LogName = DefaultLogName
	}
	if actor, ok := core.ActorFromContext(ctx); ok {
		if actor.ID != "" {
			id := actor.ID
			log.CauserID = &id
		}
		log.CauserName = actor.Name
	}
	if _, err := svc.repo.CreateLog(ctx, log, exec...); err != nil {
		return errors.Wrapf(err, "recording %s activity on %s #%s", entry.Action, entry.SubjectType, entry.SubjectID)
	}
	return nil
}

func (svc *service) Query(ctx context.Context, filter QueryFilter) ([]Log, error) {
	filter.SubjectType = core.CleanString(filter.SubjectType, true /* lower */)
	filter.Action = core.CleanString(filter.Action, true /* lower */)
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	} else if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	logs, err := svc.repo.QueryLogs(ctx, filter)
	return logs, errors.Wrap(err, "querying activity logs")
}

package schedule

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/activity"
)

func (svc *service) buildEvent(data EventData) (Event, error) {
	data.Title = core.CleanString(data.Title)
	data.Location = core.CleanString(data.Location)
	data.Audience = core.CleanString(data.Audience, true /* lower */)
	if err := svc.validate.Struct(data); err != nil {
		return Event{}, err
	}
	if data.StartTime == "" {
		data.StartTime = "00:00"
	}
	if data.EndTime == "" {
		data.EndTime = "23:59"
	}

	loc := svc.location()
	start, err := core.CombineDateClock(data.StartDate, data.StartTime, loc)
	if err != nil {
		return Event{}, core.NewFieldError("start_time", errInvalidTime)
	}
	end, err := core.CombineDateClock(data.EndDate, data.EndTime, loc)
	if err != nil {
		return Event{}, core.NewFieldError("end_time", errInvalidTime)
	}
	if !end.After(start) {
		return Event{}, core.NewFieldError("end_date", ErrEndBeforeStart)
	}

	e := Event{
		Title:       data.Title,
		Description: data.Description,
		StartTime:   start.UTC(),
		EndTime:     end.UTC(),
		Location:    data.Location,
		Audience:    data.Audience,
	}
	if e.Audience == "" {
		e.Audience = AudienceAll
	}
	return e, nil
}

func (svc *service) CreateEvent(ctx context.Context, data EventData) (Event, error) {
	e, err := svc.buildEvent(data)
	if err != nil {
		return Event{}, err
	}
	e.CreatedAt = now()
	e.UpdatedAt = now()
	err = core.InTx(ctx, svc.db, func(tx core.DBExecutor) (err error) {
		if e, err = svc.repo.CreateEvent(ctx, e, tx); err != nil {
			return errors.Wrap(err, "creating event")
		}
		return svc.activity.Record(ctx, activity.Created(SubjectTypeEvent, e.ID, "Created event "+e.Title, e), tx)
	})
	if err != nil {
		return Event{}, err
	}
	return e, nil
}

func (svc *service) GetEvent(ctx context.Context, id int) (Event, error) {
	return svc.repo.GetEvent(ctx, id)
}

func (svc *service) QueryEvents(ctx context.Context, filter EventFilter) ([]Event, error) {
	filter.Audience = core.CleanString(filter.Audience, true /* lower */)
	return svc.repo.QueryEvents(ctx, filter)
}

func (svc *service) UpdateEvent(ctx context.Context, id int, data EventData) (Event, error) {
	e, err := svc.buildEvent(data)
	if err != nil {
		return Event{}, err
	}
	err = core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		orig, err := svc.repo.GetEvent(ctx, id, tx)
		if err != nil {
			return err
		}
		e.ID = orig.ID
		e.CreatedAt = orig.CreatedAt
		e.UpdatedAt = now()
		if e, err = svc.repo.UpdateEvent(ctx, e, tx); err != nil {
			return errors.Wrap(err, "updating event")
		}
		entry := activity.Updated(SubjectTypeEvent, e.ID, "", orig, e)
		entry.Properties.Diff = activity.TextDiff(orig.Description, e.Description)
		return svc.activity.Record(ctx, entry, tx)
	})
	if err != nil {
		return Event{}, err
	}
	return e, nil
}

func (svc *service) DeleteEvent(ctx context.Context, id int) error {
	return core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		e, err := svc.repo.GetEvent(ctx, id, tx)
		if err != nil {
			return err
		}
		if err = svc.repo.DeleteEvent(ctx, id, tx); err != nil {
			return err
		}
		return svc.activity.Record(ctx, activity.Deleted(SubjectTypeEvent, id, e), tx)
	})
}

package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hzhu212/data-monitor/model"
	"github.com/hzhu212/data-monitor/template"
)

type captureAlerter struct {
	dispatched []model.AlarmInfo
}

func (c *captureAlerter) Dispatch(_ *model.Job, info model.AlarmInfo) {
	c.dispatched = append(c.dispatched, info)
}

func newTestScheduler(clock Clock, alerter Alerter) *Scheduler {
	renderer := template.NewRenderer(template.NewDefaultRegistry())
	return NewScheduler(nullLogger{}, clock, NewExecutor(nil, nil, nullLogger{}), alerter, renderer, 2, time.Millisecond)
}

func TestRunOnEmptySchedulerReturnsError(t *testing.T) {
	s := newTestScheduler(NewFakeClock(time.Now()), &captureAlerter{})
	err := s.Run(context.Background())
	require.ErrorIs(t, err, ErrEmptyScheduler)
}

func TestSeedSkipsInactiveJob(t *testing.T) {
	today := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	s := newTestScheduler(NewFakeClock(today), &captureAlerter{})
	job := &model.Job{Name: "j1", IsActive: false, Period: model.PeriodDay, DueTime: today}
	s.Seed([]*model.Job{job}, today)
	assert.Equal(t, 0, s.Len())
}

func TestSeedSkipsNonHourlyJobNotDueToday(t *testing.T) {
	today := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)
	s := newTestScheduler(NewFakeClock(today), &captureAlerter{})
	job := &model.Job{Name: "j1", IsActive: true, Period: model.PeriodDay, DueTime: yesterday, Validator: "result"}
	s.Seed([]*model.Job{job}, today)
	assert.Equal(t, 0, s.Len())
}

func TestSeedExpandsHourlyJobInto24Clones(t *testing.T) {
	today := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	s := newTestScheduler(NewFakeClock(today), &captureAlerter{})
	job := &model.Job{
		Name:        "hourly",
		IsActive:    true,
		Period:      model.PeriodHour,
		DueTime:     today,
		Validator:   "result",
		Datasources: nil,
	}
	s.Seed([]*model.Job{job}, today)
	assert.Equal(t, 24, s.Len())
}

func TestSeedDueTodayJobIsQueued(t *testing.T) {
	today := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	s := newTestScheduler(NewFakeClock(today), &captureAlerter{})
	job := &model.Job{Name: "j1", IsActive: true, Period: model.PeriodDay, DueTime: today, Validator: "result"}
	s.Seed([]*model.Job{job}, today)
	assert.Equal(t, 1, s.Len())
}

func TestFinalizeAndPushAlertsOnPass2Failure(t *testing.T) {
	today := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	alerter := &captureAlerter{}
	s := newTestScheduler(NewFakeClock(today), alerter)
	job := &model.Job{
		Name:      "j1",
		IsActive:  true,
		Period:    model.PeriodDay,
		DueTime:   today,
		Validator: "{DUETIME|dt_format(", // unterminated -> pass-2 rendering error
	}
	s.Seed([]*model.Job{job}, today)
	assert.Equal(t, 0, s.Len())
	require.Len(t, alerter.dispatched, 1)
	assert.Equal(t, model.AlarmConfigError, alerter.dispatched[0].Kind)
}

func TestHandleCompletionRequeuesRetry(t *testing.T) {
	today := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	alerter := &captureAlerter{}
	s := newTestScheduler(NewFakeClock(today), alerter)
	job := &model.Job{Name: "j1", RetryTimes: 2, RetryInterval: time.Minute}

	s.handleCompletion(completion{job: job, ok: false, info: model.NewAlarmInfo(model.AlarmException, "boom")})

	require.Len(t, alerter.dispatched, 1)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, int64(1), s.queue[0].Seq)
	assert.Equal(t, 1, s.queue[0].Job.RetryTimes)
}

func TestHandleCompletionSuccessIncrementsCompleted(t *testing.T) {
	s := newTestScheduler(NewFakeClock(time.Now()), &captureAlerter{})
	job := &model.Job{Name: "j1"}
	s.handleCompletion(completion{job: job, ok: true})
	assert.Equal(t, 1, s.Completed())
	assert.Equal(t, 0, s.Len())
}

func TestStopIsIdempotent(t *testing.T) {
	s := newTestScheduler(NewFakeClock(time.Now()), &captureAlerter{})
	s.Stop()
	assert.NotPanics(t, func() { s.Stop() })
}

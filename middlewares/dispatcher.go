package middlewares

import "github.com/hzhu212/data-monitor/model"

// Dispatcher fans an AlarmInfo out to a job's configured IM and email
// recipients. It implements core.Alerter without importing core, keeping
// the dependency direction core -> middlewares one-way.
type Dispatcher struct {
	IM    *IMDispatcher
	Email *EmailDispatcher
}

// NewDispatcher returns a Dispatcher delivering over both channels.
func NewDispatcher(im *IMDispatcher, email *EmailDispatcher) *Dispatcher {
	return &Dispatcher{IM: im, Email: email}
}

// Dispatch delivers info to job's alarm_im and alarm_email recipients. The
// two channels are independent: a failure on one never blocks the other.
func (d *Dispatcher) Dispatch(job *model.Job, info model.AlarmInfo) {
	if d.IM != nil && len(job.AlarmIM) > 0 {
		d.IM.Send(job.AlarmIM, FormatText(job, info))
	}
	if d.Email != nil && len(job.AlarmEmail) > 0 {
		d.Email.Send(job.AlarmEmail, job, info, job.SQLStatements, datasourceNames(job))
	}
}

func datasourceNames(job *model.Job) []string {
	names := make([]string, len(job.Datasources))
	for i, ds := range job.Datasources {
		names[i] = ds.Name
	}
	return names
}

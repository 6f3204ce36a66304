package main

import (
	"log/slog"

	"github.com/loykin/consolr/internal/cron"
	"github.com/loykin/consolr/internal/supervisor"
)

// startSchedule starts the [[schedule]] jobs against sup. It returns nil
// when there are none.
func startSchedule(jobs []cron.Job, sup *supervisor.Supervisor, log *slog.Logger) (*cron.Scheduler, error) {
	if len(jobs) == 0 {
		return nil, nil
	}
	sch := cron.NewScheduler(sup, log)
	for _, j := range jobs {
		if err := sch.Add(j); err != nil {
			return nil, err
		}
	}
	if err := sch.Start(); err != nil {
		return nil, err
	}
	log.Info("started scheduler", "jobs", len(jobs))
	return sch, nil
}

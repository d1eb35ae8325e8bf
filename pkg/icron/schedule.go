package icron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// TickSchedule describes when the queue was last ticked by the cron driver
// and when the next tick is due, for operational status reporting.
type TickSchedule struct {
	Expression string        `json:"expression"`
	Last       time.Time     `json:"last,omitzero"`
	Next       time.Time     `json:"next"`
	SinceLast  time.Duration `json:"since_last"`
	UntilNext  time.Duration `json:"until_next"`
}

// Describe computes the previous and next fire times of a standard cron
// expression relative to refTime. robfig/cron only exposes Next, so the
// previous fire time is found by probing backwards hour by hour.
func Describe(cronExpr string, refTime time.Time) (*TickSchedule, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	next := schedule.Next(refTime)

	var last time.Time
	for i := 0; i < 366*24; i++ {
		probe := refTime.Add(-time.Duration(i+1) * time.Hour)
		candidate := schedule.Next(probe)
		if !candidate.After(refTime) {
			// Walk forward to the latest fire time not after refTime.
			for {
				following := schedule.Next(candidate)
				if following.After(refTime) {
					break
				}
				candidate = following
			}
			last = candidate
			break
		}
	}

	info := &TickSchedule{
		Expression: cronExpr,
		Last:       last,
		Next:       next,
		UntilNext:  next.Sub(refTime),
	}
	if !last.IsZero() {
		info.SinceLast = refTime.Sub(last)
	}
	return info, nil
}

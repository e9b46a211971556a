package poller

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Schedule decides when scheduled passes run. A non-empty Cron expression
// takes precedence over Interval.
type Schedule struct {
	Interval   time.Duration
	Cron       string
	RunOnStart bool
}

func (s Schedule) String() string {
	if s.Cron != "" {
		return s.Cron
	}
	return "@every " + s.Interval.String()
}

// ValidateSchedule reports whether s can drive the scheduler.
func ValidateSchedule(s Schedule) error {
	_, err := s.parse()
	return err
}

func (s Schedule) parse() (cron.Schedule, error) {
	if s.Cron != "" {
		sched, err := cronParser.Parse(s.Cron)
		if err != nil {
			return nil, fmt.Errorf("parsing cron %q: %w", s.Cron, err)
		}
		return sched, nil
	}
	if s.Interval < time.Second {
		return nil, errors.New("interval must be at least 1s")
	}
	return cron.Every(s.Interval), nil
}

func (s Schedule) sameTrigger(o Schedule) bool {
	return s.Cron == o.Cron && s.Interval == o.Interval
}

// cronLogger routes robfig/cron logs to slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

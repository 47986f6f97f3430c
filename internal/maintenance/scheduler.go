package maintenance

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.uber.org/fx"

	"github.com/destekhq/support-platform/internal/storage"
)

// Notifier receives the scheduled self-test summaries.
type Notifier interface {
	Notify(room, text string)
}

// Scheduler fires the self-test suite at the stored daily HH:MM slots.
// Minute resolution is enough; the loop polls well below that and remembers
// the last minute each slot fired so a slot runs at most once per day-minute.
type Scheduler struct {
	storage   *storage.Storage
	selftest  *SelfTest
	notifier  Notifier
	logger    *slog.Logger
	lastFired map[uint]string
	done      chan struct{}
}

type NewScheduler_Params struct {
	fx.In

	Storage  *storage.Storage
	SelfTest *SelfTest
	Notifier Notifier
	Logger   *slog.Logger
}

func NewScheduler(params NewScheduler_Params) *Scheduler {
	return &Scheduler{
		storage:   params.Storage,
		selftest:  params.SelfTest,
		notifier:  params.Notifier,
		logger:    params.Logger,
		lastFired: make(map[uint]string),
		done:      make(chan struct{}),
	}
}

func (s *Scheduler) tick(now time.Time) {
	rows, err := s.storage.ListTestSchedules()
	if err != nil {
		s.logger.Error("unable load test schedules", slog.String("err", err.Error()))
		return
	}

	for _, row := range rows {
		if !row.Enabled {
			continue
		}

		local := now
		if loc, err := time.LoadLocation(row.TZ); err == nil {
			local = now.In(loc)
		}

		minute := local.Format("15:04")
		if minute != row.TimeHHMM {
			continue
		}

		// day-scoped so tomorrow's slot fires again
		key := local.Format("2006-01-02 15:04")
		if s.lastFired[row.ID] == key {
			continue
		}
		s.lastFired[row.ID] = key

		s.logger.Info("scheduled self-test firing", slog.String("slot", row.TimeHHMM))
		report := s.selftest.Run()

		summary, err := json.Marshal(report)
		if err != nil {
			continue
		}
		if len(summary) > 3500 {
			summary = summary[:3500]
		}
		s.notifier.Notify("system", "Scheduled self-test\n"+string(summary))
	}
}

func (s *Scheduler) loop() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.tick(now)
		}
	}
}

// Run wires the scheduler into the fx lifecycle.
func Run(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.loop()
			return nil
		},
		OnStop: func(context.Context) error {
			close(s.done)
			return nil
		},
	})
}

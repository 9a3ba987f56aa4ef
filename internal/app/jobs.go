package app

import (
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"

	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/internal/domain"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func (a *Application) initJob() {
	loc, _ := time.LoadLocation(a.appConfig.System.Location)
	a.sched = cron.New(cron.WithLocation(loc), cron.WithParser(cronParser))

	_, err := a.sched.AddFunc("@every 30s", func() {
		go a.SchedProcessMonitorTask()
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	a.sched.Start()
}

// SchedProcessMonitorTask logs process usage and session counters
func (a *Application) SchedProcessMonitorTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	fields := []zap.Field{zap.String("namespace", "monitor")}
	p, err := process.NewProcess(int32(os.Getpid())) //nolint:gosec // G115: PID is always within int32 range
	if err == nil {
		if cpuuse, err := p.CPUPercent(); err == nil {
			fields = append(fields, zap.Float64("cpu_percent", cpuuse))
		}
		if meminfo, err := p.MemoryInfo(); err == nil {
			fields = append(fields, zap.Uint64("rss_mb", meminfo.RSS/1024/1024))
		}
	}

	if a.stats != nil {
		snap := a.stats.Snapshot()
		fields = append(fields,
			zap.Int("sessions_live", snap.Live),
			zap.Int("sessions_open", snap.Open),
			zap.Int64("reconnects", snap.Reconnects),
			zap.Int64("terminated", snap.Terminated),
		)
	}
	if a.pool != nil {
		fields = append(fields, zap.Int("workers_running", a.pool.Running()))
	}
	zap.L().Info("process monitor", fields...)
}

// SessionStats keeps the last known state of every session, fed by the
// lifecycle bus.
type SessionStats struct {
	mu         sync.Mutex
	states     map[string]domain.ConnectionState
	reconnects int64
	terminated int64
}

type StatsSnapshot struct {
	Live       int
	Open       int
	Reconnects int64
	Terminated int64
}

func NewSessionStats() *SessionStats {
	return &SessionStats{states: make(map[string]domain.ConnectionState)}
}

// OnSessionState is the bus handler for domain.TopicSessionState.
func (s *SessionStats) OnSessionState(ev domain.SessionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch ev.State {
	case domain.StateTerminated:
		s.terminated++
		delete(s.states, ev.SessionName)
	case domain.StateClosed:
		delete(s.states, ev.SessionName)
	case domain.StateReconnecting:
		s.reconnects++
		s.states[ev.SessionName] = ev.State
	default:
		s.states[ev.SessionName] = ev.State
	}
}

func (s *SessionStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := StatsSnapshot{Live: len(s.states), Reconnects: s.reconnects, Terminated: s.terminated}
	for _, st := range s.states {
		if st == domain.StateOpen {
			snap.Open++
		}
	}
	return snap
}

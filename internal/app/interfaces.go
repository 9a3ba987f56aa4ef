package app

import (
	"github.com/asaskevich/EventBus"
	"github.com/panjf2000/ants/v2"
	"github.com/robfig/cron/v3"

	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/config"
)

// ConfigProvider provides application configuration
type ConfigProvider interface {
	Config() *config.AppConfig
}

// SchedulerProvider provides task scheduling capability
type SchedulerProvider interface {
	Scheduler() *cron.Cron
}

// BusProvider provides the session lifecycle event bus
type BusProvider interface {
	Bus() EventBus.Bus
}

// PoolProvider provides the shared worker pool
type PoolProvider interface {
	Pool() *ants.Pool
}

// AppContext combines all provider interfaces for full application context
// Services should depend on specific providers or this combined interface
type AppContext interface {
	ConfigProvider
	SchedulerProvider
	BusProvider
	PoolProvider
}

package app

import (
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"github.com/asaskevich/EventBus"
	"github.com/panjf2000/ants/v2"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/config"
	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/internal/domain"
)

type Application struct {
	appConfig *config.AppConfig
	sched     *cron.Cron
	bus       EventBus.Bus
	pool      *ants.Pool
	stats     *SessionStats
}

// Ensure Application implements all interfaces
var (
	_ ConfigProvider    = (*Application)(nil)
	_ SchedulerProvider = (*Application)(nil)
	_ BusProvider       = (*Application)(nil)
	_ PoolProvider      = (*Application)(nil)
	_ AppContext        = (*Application)(nil)
)

func NewApplication(appConfig *config.AppConfig) *Application {
	return &Application{appConfig: appConfig}
}

func (a *Application) Config() *config.AppConfig {
	return a.appConfig
}

func (a *Application) Init(cfg *config.AppConfig) {
	loc, err := time.LoadLocation(cfg.System.Location)
	if err != nil {
		zap.S().Error("timezone config error")
	} else {
		time.Local = loc
	}

	zap.ReplaceGlobals(newLogger(cfg))

	a.bus = EventBus.New()
	a.stats = NewSessionStats()
	if err := a.bus.Subscribe(domain.TopicSessionState, a.stats.OnSessionState); err != nil {
		zap.S().Errorf("subscribe %s error %s", domain.TopicSessionState, err.Error())
	}

	a.pool, err = ants.NewPool(cfg.WhatsApp.PresenceWorkers,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p interface{}) {
			zap.S().Errorf("worker panic: %v", p)
		}),
	)
	if err != nil {
		panic(err)
	}

	a.initJob()
}

func newLogger(cfg *config.AppConfig) *zap.Logger {
	var zapConfig zap.Config
	if cfg.Logger.Mode == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}
	if cfg.System.Debug {
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	zapConfig.OutputPaths = []string{"stdout"}

	if !cfg.Logger.FileEnable {
		logger, err := zapConfig.Build(zap.AddCaller())
		if err != nil {
			panic(err)
		}
		return logger
	}

	filename := cfg.Logger.Filename
	if !filepath.IsAbs(filename) {
		filename = filepath.Join(cfg.System.Workdir, filename)
	}
	lumberJackLogger := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    64,
		MaxBackups: 7,
		MaxAge:     7,
		Compress:   false,
	}
	core := zapcore.NewTee(
		zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(lumberJackLogger),
			zapConfig.Level,
		),
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
			zapcore.AddSync(os.Stdout),
			zapConfig.Level,
		),
	)
	return zap.New(core, zap.AddCaller())
}

// Scheduler returns the cron scheduler
func (a *Application) Scheduler() *cron.Cron {
	return a.sched
}

// Bus returns the session lifecycle event bus
func (a *Application) Bus() EventBus.Bus {
	return a.bus
}

// Pool returns the shared worker pool for fire-and-forget tasks
func (a *Application) Pool() *ants.Pool {
	return a.pool
}

func (a *Application) Stats() *SessionStats {
	return a.stats
}

// Release releases application resources
func (a *Application) Release() {
	if a.sched != nil {
		<-a.sched.Stop().Done()
	}
	if a.bus != nil && a.stats != nil {
		_ = a.bus.Unsubscribe(domain.TopicSessionState, a.stats.OnSessionState)
	}
	if a.pool != nil {
		a.pool.Release()
	}
	_ = zap.L().Sync()
}

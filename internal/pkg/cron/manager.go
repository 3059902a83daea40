package cron

import (
	"Crosspost/internal/api/config"
	"Crosspost/internal/job"
	log "log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

type Manager struct {
	engine     *cron.Cron
	spec       string
	publishJob *job.PublishJob
}

func NewCronManager(cfg config.SchedulerConfig, loc *time.Location, publishJob *job.PublishJob) *Manager {
	return &Manager{
		engine:     cron.New(cron.WithLocation(loc)),
		spec:       cfg.Cron,
		publishJob: publishJob,
	}
}

// RegisterJobs 注册定时任务
func (s *Manager) RegisterJobs() error {
	if _, err := s.engine.AddJob(s.spec, s.publishJob); err != nil {
		return err
	}
	return nil
}

func (s *Manager) Start() {
	log.Info("Cron 定时任务引擎启动", "spec", s.spec)
	s.engine.Start()
}

func (s *Manager) Stop() {
	log.Info("Cron 定时任务引擎停止")
	s.engine.Stop()
}

package wire

import (
	"Crosspost/internal/api"
	"Crosspost/internal/api/config"
	"Crosspost/internal/api/handler"
	"Crosspost/internal/job"
	"Crosspost/internal/pkg/cache"
	"Crosspost/internal/pkg/cron"
	"Crosspost/internal/pkg/kafka"
	"Crosspost/internal/pkg/platform"
	"Crosspost/internal/repository"
	"Crosspost/internal/service"
	log "log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router    *gin.Engine
	DB        *gorm.DB
	CronMgr   *cron.Manager
	Scheduler service.SchedulerService
	Events    kafka.EventPublisher
}

func BuildApplication(db *gorm.DB, cfg *config.Config) (*ApplicationContainer, error) {
	loc, err := time.LoadLocation(cfg.Scheduler.TimeZone)
	if err != nil {
		return nil, err
	}

	postRepo := repository.NewPostRepository(db)
	sendLogRepo := repository.NewSendLogRepository(db)

	sessionCache := cache.NewRedisCache()
	registry := platform.NewRegistry(
		platform.NewBlueskyClient(cfg.Platforms.Bluesky, sessionCache),
		platform.NewMastodonClient(cfg.Platforms.Mastodon),
	)
	log.Info("平台适配器注册完成", "platforms", registry.IDs())

	events, err := kafka.NewEventPublisher(cfg.Kafka)
	if err != nil {
		return nil, err
	}

	fanout := service.NewFanout(registry, cfg.Scheduler.FanoutConcurrency)
	locker := service.NewRedisLocker()

	schedulerService := service.NewSchedulerService(
		postRepo, sendLogRepo, fanout, locker, events, cfg.Scheduler, loc)
	postService := service.NewPostService(postRepo, sendLogRepo, schedulerService, registry, events, loc)
	retractionService := service.NewRetractionService(postRepo, sendLogRepo, registry, events)

	handlers := &api.HandlersGroup{
		PostHandler:    handler.NewPostHandler(postService, retractionService),
		PendingHandler: handler.NewPendingHandler(postService),
	}

	router := api.SetupRouter(handlers)

	publishJob := job.NewPublishJob(schedulerService)
	cronMgr := cron.NewCronManager(cfg.Scheduler, loc, publishJob)

	return &ApplicationContainer{
		Router:    router,
		DB:        db,
		CronMgr:   cronMgr,
		Scheduler: schedulerService,
		Events:    events,
	}, nil
}

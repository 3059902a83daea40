package job

import (
	"Crosspost/internal/pkg/logger"
	"Crosspost/internal/service"
	"context"
	log "log/slog"

	"github.com/google/uuid"
)

type PublishJob struct {
	schedulerSvc service.SchedulerService
}

func NewPublishJob(schedulerSvc service.SchedulerService) *PublishJob {
	return &PublishJob{
		schedulerSvc: schedulerSvc,
	}
}

func (s *PublishJob) Run() {
	traceID := "job-publish-" + uuid.NewString()
	ctx := context.WithValue(context.Background(), logger.TraceIDKey, traceID)

	if err := s.schedulerSvc.ProcessDuePosts(ctx); err != nil {
		log.ErrorContext(ctx, "process due posts error", "err", err)
	}
}

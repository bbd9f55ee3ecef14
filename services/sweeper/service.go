package sweeper

import (
	"context"
	"encoding/json"
	"time"

	taskqueue "cloudfund-settlement/pkg/asynq"
	"cloudfund-settlement/services/settlement"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Enqueuer is the slice of the queue client the service uses; tests
// substitute their own.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// SweepRunner runs one settlement pass over expired campaigns.
type SweepRunner interface {
	Sweep(ctx context.Context) (*settlement.SweepReport, error)
}

type Service struct {
	db    *gorm.DB
	node  *snowflake.Node
	asynq Enqueuer

	settlement SweepRunner
}

type Params struct {
	fx.In
	DB    *gorm.DB
	Node  *snowflake.Node
	Asynq *asynq.Client

	Settlement *settlement.Service
}

func NewService(p Params) *Service {
	return &Service{
		db:    p.DB,
		node:  p.Node,
		asynq: p.Asynq,

		settlement: p.Settlement,
	}
}

// Enqueue records a sweep job and hands it to the queue. triggeredBy is
// "scheduler" or "admin".
func (s *Service) Enqueue(ctx context.Context, triggeredBy string) (*Job, error) {
	job := Job{
		ID:          s.node.Generate().String(),
		TriggeredBy: triggeredBy,
		Status:      "pending",
		CreatedAt:   time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&job).Error; err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(taskqueue.SweepPayload{
		JobID:       job.ID,
		TriggeredBy: triggeredBy,
	})
	task := asynq.NewTask(taskqueue.SweepTask, payload)

	if _, err := s.asynq.Enqueue(task, asynq.Queue("critical")); err != nil {
		s.db.Model(&job).Update("status", "failed")
		return nil, err
	}

	zap.L().Info("enqueued sweep job",
		zap.String("job_id", job.ID),
		zap.String("triggered_by", triggeredBy),
	)
	return &job, nil
}

// HandleSweepTask is the Asynq worker entrypoint. It decodes the
// payload and delegates to RunSweep.
func (s *Service) HandleSweepTask(ctx context.Context, t *asynq.Task) error {
	var payload taskqueue.SweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		zap.L().Error("invalid sweep payload", zap.Error(err))
		return err
	}

	zap.L().Info("processing sweep task", zap.String("job_id", payload.JobID))
	return s.RunSweep(ctx, payload.JobID)
}

// RunSweep executes one settlement sweep and records its outcome on the
// job row.
func (s *Service) RunSweep(ctx context.Context, jobID string) error {
	now := time.Now()
	s.db.Model(&Job{}).Where("id = ?", jobID).Updates(map[string]any{
		"status":     "running",
		"started_at": now,
	})

	report, err := s.settlement.Sweep(ctx)
	if err != nil {
		zap.L().Error("sweep failed", zap.String("job_id", jobID), zap.Error(err))
		s.db.Model(&Job{}).Where("id = ?", jobID).Updates(map[string]any{
			"status":       "failed",
			"error_msg":    err.Error(),
			"completed_at": time.Now(),
		})
		return err
	}

	raw, _ := json.Marshal(report)
	s.db.Model(&Job{}).Where("id = ?", jobID).Updates(map[string]any{
		"status":       "success",
		"report":       raw,
		"completed_at": time.Now(),
	})

	zap.L().Info("sweep job finished", zap.String("job_id", jobID))
	return nil
}

// RegisterHandlers attaches the worker handlers to the Asynq mux.
func RegisterHandlers(mux *asynq.ServeMux, s *Service) {
	mux.HandleFunc(taskqueue.SweepTask, s.HandleSweepTask)
}

package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	// 任务元数据在Redis中的键前缀
	taskKeyPrefix = "task:"
	// 论文到任务列表的键前缀
	paperTasksKeyPrefix = "paper_tasks:"
	// 任务元数据的过期时间
	taskExpiry = 7 * 24 * time.Hour
	// 任务状态变更通知的频道前缀
	taskNotifyChannelPrefix = "task_status:"
)

// RedisQueue 基于asynq的Redis任务队列实现
type RedisQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	redis     *redis.Client
	cfg       *Config
	logger    *logrus.Logger
}

// NewRedisQueue 创建Redis任务队列
func NewRedisQueue(cfg *Config) (Queue, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	return &RedisQueue{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		redis:     rdb,
		cfg:       cfg,
		logger:    logrus.New(),
	}, nil
}

// Enqueue 将任务加入队列
func (q *RedisQueue) Enqueue(ctx context.Context, taskType TaskType, paperID string, payload interface{}) (string, error) {
	return q.enqueue(ctx, taskType, paperID, payload, 0)
}

// EnqueueIn 在指定延迟后将任务加入队列
func (q *RedisQueue) EnqueueIn(ctx context.Context, taskType TaskType, paperID string, payload interface{}, delay time.Duration) (string, error) {
	return q.enqueue(ctx, taskType, paperID, payload, delay)
}

func (q *RedisQueue) enqueue(ctx context.Context, taskType TaskType, paperID string, payload interface{}, delay time.Duration) (string, error) {
	data, err := MarshalPayload(payload)
	if err != nil {
		return "", err
	}

	now := time.Now()
	task := &Task{
		ID:         uuid.New().String(),
		Type:       taskType,
		PaperID:    paperID,
		Status:     TaskStatusPending,
		Payload:    data,
		CreatedAt:  now,
		UpdatedAt:  now,
		MaxRetries: q.cfg.RetryLimit,
	}

	if err := q.saveTaskToRedis(ctx, task); err != nil {
		return "", fmt.Errorf("failed to save task metadata: %w", err)
	}

	opts := []asynq.Option{
		asynq.TaskID(task.ID),
		asynq.MaxRetry(q.cfg.RetryLimit),
		asynq.Queue("default"),
	}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}

	asynqTask := asynq.NewTask(string(taskType), data)
	if _, err := q.client.EnqueueContext(ctx, asynqTask, opts...); err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}

	q.logger.WithFields(logrus.Fields{
		"task_id":  task.ID,
		"type":     taskType,
		"paper_id": paperID,
	}).Info("Task enqueued")

	return task.ID, nil
}

// GetTask 获取任务信息
func (q *RedisQueue) GetTask(ctx context.Context, taskID string) (*Task, error) {
	data, err := q.redis.Get(ctx, taskKeyPrefix+taskID).Bytes()
	if err == redis.Nil {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &task, nil
}

// GetTasksByPaper 获取论文相关的所有任务
func (q *RedisQueue) GetTasksByPaper(ctx context.Context, paperID string) ([]*Task, error) {
	taskIDs, err := q.redis.SMembers(ctx, paperTasksKeyPrefix+paperID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get paper tasks: %w", err)
	}

	tasks := make([]*Task, 0, len(taskIDs))
	for _, id := range taskIDs {
		task, err := q.GetTask(ctx, id)
		if err == ErrTaskNotFound {
			continue // 任务元数据已过期
		}
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// WaitForTask 等待任务完成并返回结果
func (q *RedisQueue) WaitForTask(ctx context.Context, taskID string, timeout time.Duration) (*Task, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// 订阅任务状态变更通知，轮询作为兜底
	sub := q.redis.Subscribe(ctx, taskNotifyChannelPrefix+taskID)
	defer sub.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		task, err := q.GetTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if task.Status == TaskStatusCompleted || task.Status == TaskStatusFailed {
			return task, nil
		}

		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return nil, ErrTaskTimeout
			}
			return nil, ctx.Err()
		case <-sub.Channel():
		case <-ticker.C:
		}
	}
}

// DeleteTask 删除任务
func (q *RedisQueue) DeleteTask(ctx context.Context, taskID string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	if err := q.redis.Del(ctx, taskKeyPrefix+taskID).Err(); err != nil {
		return fmt.Errorf("failed to delete task metadata: %w", err)
	}
	if task.PaperID != "" {
		q.redis.SRem(ctx, paperTasksKeyPrefix+task.PaperID, taskID)
	}

	// asynq中的任务可能已被消费，删除失败不影响元数据清理
	if err := q.inspector.DeleteTask("default", taskID); err != nil {
		q.logger.WithField("task_id", taskID).WithError(err).Debug("Failed to delete task from asynq")
	}
	return nil
}

// UpdateTaskStatus 更新任务状态和结果
func (q *RedisQueue) UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, result interface{}, errorMsg string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	now := time.Now()
	task.Status = status
	task.Error = errorMsg
	task.UpdatedAt = now

	switch status {
	case TaskStatusProcessing:
		task.StartedAt = &now
		task.Attempts++
	case TaskStatusCompleted, TaskStatusFailed:
		task.CompletedAt = &now
	}

	if result != nil {
		data, err := MarshalPayload(result)
		if err != nil {
			return err
		}
		task.Result = data
	}

	if err := q.saveTaskToRedis(ctx, task); err != nil {
		return err
	}
	return q.NotifyTaskUpdate(ctx, taskID)
}

// NotifyTaskUpdate 通知任务状态已更新
func (q *RedisQueue) NotifyTaskUpdate(ctx context.Context, taskID string) error {
	return q.redis.Publish(ctx, taskNotifyChannelPrefix+taskID, "updated").Err()
}

// Close 关闭队列连接
func (q *RedisQueue) Close() error {
	if err := q.client.Close(); err != nil {
		return err
	}
	return q.redis.Close()
}

// saveTaskToRedis 保存任务元数据到Redis
func (q *RedisQueue) saveTaskToRedis(ctx context.Context, task *Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	pipe := q.redis.Pipeline()
	pipe.Set(ctx, taskKeyPrefix+task.ID, data, taskExpiry)
	if task.PaperID != "" {
		pipe.SAdd(ctx, paperTasksKeyPrefix+task.PaperID, task.ID)
		pipe.Expire(ctx, paperTasksKeyPrefix+task.PaperID, taskExpiry)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// RedisWorker 基于asynq的任务工作者
type RedisWorker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	queue    Queue
	handlers map[TaskType]Handler
	logger   *logrus.Logger
}

// NewRedisWorker 创建Redis任务工作者
func NewRedisWorker(cfg *Config, queue Queue) *RedisWorker {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      cfg.Queues,
			RetryDelayFunc: func(n int, e error, t *asynq.Task) time.Duration {
				return cfg.RetryDelay
			},
		},
	)

	return &RedisWorker{
		server:   server,
		mux:      asynq.NewServeMux(),
		queue:    queue,
		handlers: make(map[TaskType]Handler),
		logger:   logrus.New(),
	}
}

// RegisterHandler 注册任务处理器
func (w *RedisWorker) RegisterHandler(taskType TaskType, handler Handler) {
	w.handlers[taskType] = handler
	w.mux.HandleFunc(string(taskType), func(ctx context.Context, t *asynq.Task) error {
		taskID, ok := asynq.GetTaskID(ctx)
		if !ok {
			return ErrInvalidPayload
		}

		task, err := w.queue.GetTask(ctx, taskID)
		if err != nil {
			return err
		}

		if err := w.queue.UpdateTaskStatus(ctx, taskID, TaskStatusProcessing, nil, ""); err != nil {
			w.logger.WithField("task_id", taskID).WithError(err).Warn("Failed to mark task processing")
		}

		if err := handler.ProcessTask(ctx, task); err != nil {
			if uerr := w.queue.UpdateTaskStatus(ctx, taskID, TaskStatusFailed, nil, err.Error()); uerr != nil {
				w.logger.WithField("task_id", taskID).WithError(uerr).Error("Failed to mark task failed")
			}
			return err
		}
		return nil
	})
}

// Start 启动工作者
func (w *RedisWorker) Start() error {
	w.logger.Info("Starting task worker")
	return w.server.Start(w.mux)
}

// Stop 停止工作者
func (w *RedisWorker) Stop() {
	w.logger.Info("Stopping task worker")
	w.server.Shutdown()
}

func init() {
	RegisterQueueFactory("redis", NewRedisQueue)
}

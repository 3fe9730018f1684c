/*
Copyright 2025 Kagurabot Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package exchange

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/kagurabot/exchange/config"
	redis_db "github.com/kagurabot/exchange/internal/redis-db"
	"github.com/kagurabot/exchange/model"
)

// Queue dispatches redemption attempt tasks at wall-clock instants. Each of
// a plan's N attempts is its own task, so a slow HTTP call inside one attempt
// never blocks the others or any other plan's jobs.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// attemptPayload is the serialized body of one scheduled attempt task.
type attemptPayload struct {
	Plan    *model.ExchangePlan `json:"plan"`
	Attempt int                 `json:"attempt"`
}

// NewQueue initializes a new Queue instance with the provided configuration.
//
// Parameters:
// - conf *config.Configuration: The configuration for the queue.
//
// Returns:
// - *Queue: A pointer to the newly created Queue instance.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// attemptTaskID names one attempt task. Built from the plan's composite
// identity, so re-registering the same plan collapses onto the same tasks
// instead of doubling the race.
func attemptTaskID(planID string, attempt int) string {
	return fmt.Sprintf("%s:attempt:%d", planID, attempt)
}

// EnqueueAttempt schedules one redemption attempt to fire at processAt.
// Retry is disabled at the queue level: the attempt handler runs its own
// bounded retry loop inside the redemption window, and a task-level re-run
// after that window would fire long past the race.
//
// Parameters:
// - plan *model.ExchangePlan: The plan the attempt belongs to.
// - attempt int: The attempt ordinal (1..N).
// - processAt time.Time: The local wall-clock instant to fire at.
//
// Returns:
// - error: An error if the task could not be enqueued.
func (q *Queue) EnqueueAttempt(plan *model.ExchangePlan, attempt int, processAt time.Time) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(attemptPayload{Plan: plan, Attempt: attempt})
	if err != nil {
		return err
	}

	window := time.Duration(cfg.Exchange.WindowSec) * time.Second
	taskOptions := []asynq.Option{
		asynq.TaskID(attemptTaskID(plan.PlanID(), attempt)),
		asynq.Queue(cfg.Queue.ExchangeQueue),
		asynq.ProcessAt(processAt),
		asynq.MaxRetry(0),
		asynq.Timeout(window + time.Minute),
	}
	task := asynq.NewTask(cfg.Queue.ExchangeQueue, payload, taskOptions...)
	info, err := q.Client.Enqueue(task)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			// Same plan, same attempt already registered.
			return nil
		}
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued attempt %d for plan %s", attempt, plan.PlanID())
	return nil
}

// DeleteAttempts removes any still-pending attempt tasks for a plan. Tasks
// already running are left alone; their results are discarded by the
// aggregator once the plan is resolved.
func (q *Queue) DeleteAttempts(planID string, attempts int) {
	cfg, err := config.Fetch()
	if err != nil {
		return
	}
	for i := 1; i <= attempts; i++ {
		if err := q.Inspector.DeleteTask(cfg.Queue.ExchangeQueue, attemptTaskID(planID, i)); err != nil {
			// Missing or already-running tasks are expected here.
			continue
		}
	}
}

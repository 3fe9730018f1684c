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
	"context"
	"encoding/json"
	"math/rand"
	"runtime/debug"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/kagurabot/exchange/config"
	"github.com/kagurabot/exchange/internal/timesync"
	"github.com/kagurabot/exchange/model"
)

// Scheduler arranges for a plan's N parallel redemption attempts to fire at
// the good's unlock instant, judged against the drift-corrected clock, and
// keeps each attempt retrying inside a bounded post-open window to absorb
// clock skew and "not open yet" rejections.
//
// Each attempt is an independent queue task. Inventory is contended; firing
// several near-simultaneous requests is what a human mashing the redeem
// button would do, and one slow response must not hold back the siblings.
type Scheduler struct {
	queue   *Queue
	catalog *CatalogClient
	engine  Engine
	agg     *ResultAggregator
	clock   *timesync.TimeSync
}

// NewScheduler wires the scheduler's collaborators.
func NewScheduler(queue *Queue, catalog *CatalogClient, engine Engine, agg *ResultAggregator, clock *timesync.TimeSync) *Scheduler {
	return &Scheduler{
		queue:   queue,
		catalog: catalog,
		engine:  engine,
		agg:     agg,
		clock:   clock,
	}
}

// SchedulePlan registers the plan's N attempt tasks to fire at its unlock
// time. The fire instant is translated to the local clock: when the server
// clock reaches the unlock time, the local clock reads unlock minus offset.
func (s *Scheduler) SchedulePlan(ctx context.Context, plan *model.ExchangePlan) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	attempts := cfg.Exchange.Attempts
	s.agg.Register(plan.PlanID(), attempts)

	fireAt := plan.Good.UnlockAt().Add(-s.clock.Offset())
	for i := 1; i <= attempts; i++ {
		if err := s.queue.EnqueueAttempt(plan, i, fireAt); err != nil {
			return err
		}
	}
	logrus.Infof("scheduled %d attempts for plan %s at %s", attempts, plan.PlanID(), fireAt)
	return nil
}

// CancelPlan drops any pending attempt tasks for a plan. In-flight attempts
// are not killed; their results are discarded once the plan is gone.
func (s *Scheduler) CancelPlan(planID string) {
	cfg, err := config.Fetch()
	if err != nil {
		return
	}
	s.queue.DeleteAttempts(planID, cfg.Exchange.Attempts)
}

// ProcessAttempt is the queue handler for one attempt task. Any panic inside
// an attempt is confined to that attempt: it is logged with stack context
// and reported as a transport-class failure, so one malfunctioning plan can
// never take the worker down.
func (s *Scheduler) ProcessAttempt(ctx context.Context, t *asynq.Task) (err error) {
	var payload attemptPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logrus.Error(err)
		return err
	}
	plan := payload.Plan

	defer func() {
		if rec := recover(); rec != nil {
			logrus.Errorf("attempt %d for plan %s panicked: %v\n%s",
				payload.Attempt, plan.PlanID(), rec, debug.Stack())
			s.agg.Report(ctx, plan, &model.ExchangeResult{
				Status:  model.StatusNetworkError,
				Message: "internal error during attempt",
				Plan:    plan,
			})
			err = nil
		}
	}()

	s.runAttempt(ctx, plan, payload.Attempt)
	return nil
}

// runAttempt executes one attempt end to end: due-time availability check,
// wait for the corrected unlock instant, then the bounded retry race.
func (s *Scheduler) runAttempt(ctx context.Context, plan *model.ExchangePlan, attempt int) {
	cfg, err := config.Fetch()
	if err != nil {
		s.agg.Report(ctx, plan, &model.ExchangeResult{
			Status: model.StatusNetworkError, Message: err.Error(), Plan: plan,
		})
		return
	}

	if s.agg.Resolved(plan.PlanID()) {
		// A sibling already settled the plan before we started.
		s.agg.Report(ctx, plan, &model.ExchangeResult{Status: model.StatusFailure, Plan: plan})
		return
	}

	// Catalog data can change between scheduling and firing: re-read the
	// authoritative detail and abort without a single exchange call if the
	// good is gone or its window no longer exists.
	fresh := plan.Good
	switch status, _ := s.catalog.GetDetail(ctx, plan.Good.GoodsID, &fresh); status {
	case model.StatusGoodNotExist:
		s.agg.Unavailable(ctx, plan)
		return
	case model.StatusSuccess:
		if !fresh.Schedulable() || fresh.SoldOut() {
			s.agg.Unavailable(ctx, plan)
			return
		}
	default:
		// Detail unavailable right now; race on the snapshot we have.
		logrus.Debugf("due-time detail check failed with %s for plan %s, using snapshot", status, plan.PlanID())
	}

	unlock := plan.Good.UnlockAt()
	if wait := unlock.Sub(s.clock.Now()); wait > 0 {
		select {
		case <-ctx.Done():
			s.agg.Report(ctx, plan, &model.ExchangeResult{
				Status: model.StatusNetworkError, Message: ctx.Err().Error(), Plan: plan,
			})
			return
		case <-time.After(wait):
		}
	}

	deadline := unlock.Add(time.Duration(cfg.Exchange.WindowSec) * time.Second)
	jitter := time.Duration(cfg.Exchange.JitterMs) * time.Millisecond

	var last *model.ExchangeResult
	for {
		if s.agg.Resolved(plan.PlanID()) {
			s.agg.Report(ctx, plan, &model.ExchangeResult{Status: model.StatusFailure, Plan: plan})
			return
		}

		// Courtesy jitter spreads the parallel attempts a few hundred
		// milliseconds apart instead of landing as one burst.
		sleepJitter(ctx, jitter)

		status, result := s.engine.Exchange(ctx, plan)
		last = result

		retryable := status.Retryable() || TooEarly(result)
		if !retryable || s.clock.Now().After(deadline) {
			break
		}
		logrus.Debugf("attempt %d for plan %s got %s, retrying inside window", attempt, plan.PlanID(), status)
	}

	s.agg.Report(ctx, plan, last)
}

func sleepJitter(ctx context.Context, max time.Duration) {
	if max <= 0 {
		return
	}
	d := time.Duration(rand.Int63n(int64(max)))
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

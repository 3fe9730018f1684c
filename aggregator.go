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
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kagurabot/exchange/internal/notification"
	"github.com/kagurabot/exchange/model"
)

// ResultAggregator folds the outcomes of a plan's N parallel attempts into
// exactly one user-facing notification and exactly one plan removal.
//
// The first success wins and resolves the plan immediately; attempts that
// complete afterwards are observed but have no user-visible effect. If all N
// attempts report in without a success, the last one triggers a single
// failure summary. Login expiry resolves the plan at once: further attempts
// with the same dead session cannot succeed.
type ResultAggregator struct {
	store    *PlanStore
	notifier notification.Notifier

	mu      sync.Mutex
	tallies map[string]*planTally
}

// planTally tracks one plan's race. Guarded by the aggregator mutex: the N
// attempts finish in arbitrary order, and the single-writer-wins race on
// resolved must be decided under a lock.
type planTally struct {
	expected    int
	reported    int
	resolved    bool
	lastOutcome *model.ExchangeResult
}

// NewResultAggregator creates an aggregator over the given store and
// notification sink.
func NewResultAggregator(store *PlanStore, notifier notification.Notifier) *ResultAggregator {
	return &ResultAggregator{
		store:    store,
		notifier: notifier,
		tallies:  make(map[string]*planTally),
	}
}

// Register announces that attempts attempts will report for the plan.
// Idempotent; safe to call again when a plan is re-scheduled after restart.
func (a *ResultAggregator) Register(planID string, attempts int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.tallies[planID]; !ok {
		a.tallies[planID] = &planTally{expected: attempts}
	}
}

// Resolved reports whether the plan has already reached a terminal state.
// Attempt loops poll this to stop racing once a sibling has won or the
// session has expired.
func (a *ResultAggregator) Resolved(planID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.tallies[planID]
	return ok && t.resolved
}

// Report delivers one attempt's outcome. Exactly one of the N reports for a
// plan triggers the terminal notification and the store removal; the rest
// are counted and discarded.
func (a *ResultAggregator) Report(ctx context.Context, plan *model.ExchangePlan, result *model.ExchangeResult) {
	planID := plan.PlanID()

	a.mu.Lock()
	t, ok := a.tallies[planID]
	if !ok {
		// Attempt fired without a registration, e.g. after a process
		// restart with tasks already queued. Adopt it.
		t = &planTally{expected: 1}
		a.tallies[planID] = t
	}
	t.reported++
	t.lastOutcome = result

	if t.resolved {
		// Plan already settled; observe silently and clean the tally up
		// once the last straggler is in.
		a.finishLocked(planID, t)
		a.mu.Unlock()
		return
	}

	var message string
	switch result.Status {
	case model.StatusSuccess:
		t.resolved = true
		message = fmt.Sprintf("「%s」redeemed successfully 🎉", plan.Good.Name)
	case model.StatusLoginExpired:
		t.resolved = true
		message = fmt.Sprintf("login expired, please log in again — the plan for 「%s」 was cancelled", plan.Good.Name)
	case model.StatusGoodNotExist:
		t.resolved = true
		message = fmt.Sprintf("「%s」 is no longer available; the plan was removed", plan.Good.Name)
	default:
		if t.reported < t.expected {
			// Not terminal yet: wait for the remaining attempts.
			a.mu.Unlock()
			return
		}
		t.resolved = true
		message = exhaustionMessage(plan, t.lastOutcome)
	}
	a.finishLocked(planID, t)
	a.mu.Unlock()

	a.resolve(ctx, plan, message)
}

// Discard marks a plan resolved without notifying or touching the store. Used
// when the user cancels: attempts already in flight still report, and the
// resolved tally keeps those late outcomes silent. The tally is retained
// rather than deleted so a straggler cannot re-adopt the plan and notify
// about something the user no longer has.
func (a *ResultAggregator) Discard(planID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.tallies[planID]
	if !ok {
		t = &planTally{expected: 1}
		a.tallies[planID] = t
	}
	t.resolved = true
}

// Unavailable resolves a plan that can no longer fire at all: the good was
// delisted or its window is gone. Routes through the same exactly-once path
// as attempt outcomes.
func (a *ResultAggregator) Unavailable(ctx context.Context, plan *model.ExchangePlan) {
	a.Report(ctx, plan, &model.ExchangeResult{
		Status: model.StatusGoodNotExist,
		Plan:   plan,
	})
}

// finishLocked drops the tally once every expected attempt has reported, so
// resolved plans do not leak entries. Caller holds the mutex.
func (a *ResultAggregator) finishLocked(planID string, t *planTally) {
	if t.resolved && t.reported >= t.expected {
		delete(a.tallies, planID)
	}
}

// resolve performs the single terminal side effect pair for a plan:
// one notification, one store removal.
func (a *ResultAggregator) resolve(ctx context.Context, plan *model.ExchangePlan, message string) {
	removed, err := a.store.Remove(ctx, plan.PlanID())
	if err != nil {
		logrus.Errorf("failed to remove resolved plan %s: %v", plan.PlanID(), err)
	} else if !removed {
		logrus.Debugf("plan %s was already removed", plan.PlanID())
	}
	a.notifier.Notify(plan.UserID, message)
}

func exhaustionMessage(plan *model.ExchangePlan, last *model.ExchangeResult) string {
	if last != nil && last.Status == model.StatusFailure && last.Message != "" {
		return fmt.Sprintf("could not redeem 「%s」: %s", plan.Good.Name, last.Message)
	}
	return fmt.Sprintf("could not redeem 「%s」, all attempts failed", plan.Good.Name)
}

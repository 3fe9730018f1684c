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

// Package exchange implements timed redemption of limited-stock goods on the
// mall API: plans record what to redeem and when, a drift-corrected clock
// decides when the unlock instant actually is, and N parallel attempts race
// the rest of the community for the stock.
package exchange

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/kagurabot/exchange/config"
	"github.com/kagurabot/exchange/database"
	"github.com/kagurabot/exchange/internal/apierror"
	"github.com/kagurabot/exchange/internal/cache"
	"github.com/kagurabot/exchange/internal/notification"
	"github.com/kagurabot/exchange/internal/signing"
	"github.com/kagurabot/exchange/internal/timesync"
	"github.com/kagurabot/exchange/model"
)

// Exchange is the composition root of the redemption subsystem. The API layer
// and the queue workers share one instance.
type Exchange struct {
	datasource database.IDataSource
	store      *PlanStore
	queue      *Queue
	catalog    *CatalogClient
	engine     Engine
	aggregator *ResultAggregator
	scheduler  *Scheduler
	clock      *timesync.TimeSync
	notifier   notification.Notifier
}

// NewExchange initializes a new Exchange instance over the given datasource.
//
// Parameters:
// - db database.IDataSource: The datasource for plans and credentials.
//
// Returns:
// - *Exchange: A pointer to the newly created Exchange instance.
// - error: An error if initialization fails.
func NewExchange(db database.IDataSource) (*Exchange, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	// Catalog caching is an optimization: a dead Redis must not keep the
	// subsystem from starting, the queue connection will surface it anyway.
	catalogCache, err := cache.NewCache()
	if err != nil {
		logrus.Warnf("catalog cache unavailable, browsing uncached: %v", err)
		catalogCache = nil
	}

	catalog, err := NewCatalogClient(catalogCache)
	if err != nil {
		return nil, err
	}

	clock := timesync.New(configuration.Mall.TimeUrl, time.Duration(configuration.Mall.TimeoutSec)*time.Second)
	signer := signing.NewBuilder(signing.DefaultHeaderConfig())
	engine, err := NewExchangeEngine(db, signer, clock.Now)
	if err != nil {
		return nil, err
	}

	store := NewPlanStore(db)
	notifier := notification.NewWebhookNotifier()
	aggregator := NewResultAggregator(store, notifier)
	queue := NewQueue(configuration)

	return &Exchange{
		datasource: db,
		store:      store,
		queue:      queue,
		catalog:    catalog,
		engine:     engine,
		aggregator: aggregator,
		scheduler:  NewScheduler(queue, catalog, engine, aggregator, clock),
		clock:      clock,
		notifier:   notifier,
	}, nil
}

// SyncTime measures the server clock offset once. The returned error is
// advisory; scheduling continues on the local clock when sync fails.
func (e *Exchange) SyncTime(ctx context.Context) error {
	return e.clock.Sync(ctx)
}

// StartTimeSync performs an initial sync and keeps re-measuring on the
// configured interval until the context is cancelled.
func (e *Exchange) StartTimeSync(ctx context.Context) {
	configuration, err := config.Fetch()
	if err != nil {
		logrus.Error(err)
		return
	}
	_ = e.clock.Sync(ctx)
	e.clock.StartPeriodic(ctx, time.Duration(configuration.Exchange.ResyncMin)*time.Minute)
}

// ClockOffset exposes the current measured offset for diagnostics.
func (e *Exchange) ClockOffset() time.Duration {
	return e.clock.Offset()
}

// ListGoods returns the schedulable goods for one game.
func (e *Exchange) ListGoods(ctx context.Context, gameBiz string) ([]model.Good, error) {
	return e.catalog.ListGoods(ctx, gameBiz)
}

// SearchGoods resolves a typed name against the catalog, closest names first.
func (e *Exchange) SearchGoods(ctx context.Context, gameBiz, query string, limit int) ([]model.Good, error) {
	goods, err := e.catalog.ListGoods(ctx, gameBiz)
	if err != nil {
		return nil, err
	}
	return FindGoodsByName(goods, query, limit), nil
}

// GetGood fetches one good's detail, served from the short-TTL cache when
// available.
func (e *Exchange) GetGood(ctx context.Context, goodsID string) (*model.Good, error) {
	status, good := e.catalog.GetDetailCached(ctx, goodsID)
	switch status {
	case model.StatusSuccess:
		return good, nil
	case model.StatusGoodNotExist:
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "goods not found", goodsID)
	default:
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to fetch goods detail", string(status))
	}
}

// CreatePlan validates, persists and schedules a redemption plan.
//
// The good's unlock time and stock are re-read from the catalog first so the
// plan is judged against authoritative data, not whatever listing the user
// browsed minutes ago. A good that is gone, has no timed window or is already
// sold out fails the precondition check and nothing is stored.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - plan *model.ExchangePlan: The plan to create; Good is refreshed in place.
//
// Returns:
// - *model.ExchangePlan: The stored plan.
// - error: A validation, conflict or scheduling error.
func (e *Exchange) CreatePlan(ctx context.Context, plan *model.ExchangePlan) (*model.ExchangePlan, error) {
	status, _ := e.catalog.GetDetail(ctx, plan.Good.GoodsID, &plan.Good)
	switch status {
	case model.StatusSuccess:
	case model.StatusGoodNotExist:
		return nil, apierror.NewAPIError(apierror.ErrPreconditionFailed, "goods no longer exists", plan.Good.GoodsID)
	default:
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to verify goods detail", string(status))
	}
	if plan.Good.SoldOut() {
		return nil, apierror.NewAPIError(apierror.ErrPreconditionFailed, "goods is sold out", plan.Good.GoodsID)
	}

	if err := plan.Validate(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrPreconditionFailed, err.Error(), err)
	}

	plan.CreatedAt = time.Now()
	if err := e.store.Add(ctx, plan); err != nil {
		return nil, err
	}

	if err := e.scheduler.SchedulePlan(ctx, plan); err != nil {
		// Keep the store consistent with the queue: an unscheduled plan
		// would silently never fire.
		if _, rollbackErr := e.store.Remove(ctx, plan.PlanID()); rollbackErr != nil {
			logrus.Errorf("failed to roll back unscheduled plan %s: %v", plan.PlanID(), rollbackErr)
		}
		return nil, err
	}
	return plan, nil
}

// CancelPlan removes a plan and drops its pending attempt tasks. Attempts
// already running keep going; marking the plan resolved makes their outcomes
// land silently instead of notifying about a plan the user just cancelled.
func (e *Exchange) CancelPlan(ctx context.Context, planID string) error {
	e.scheduler.CancelPlan(planID)
	e.aggregator.Discard(planID)
	removed, err := e.store.Remove(ctx, planID)
	if err != nil {
		return err
	}
	if !removed {
		return apierror.NewAPIError(apierror.ErrNotFound, "plan not found", planID)
	}
	return nil
}

// GetPlan fetches one stored plan.
func (e *Exchange) GetPlan(ctx context.Context, planID string) (*model.ExchangePlan, error) {
	return e.store.Get(ctx, planID)
}

// ListPlans returns the plans owned by one account.
func (e *Exchange) ListPlans(ctx context.Context, accountID string) ([]*model.ExchangePlan, error) {
	return e.store.List(ctx, accountID)
}

// ReloadPlans re-registers every stored plan with the queue after a restart.
// Plans whose goods disappeared or lost their timed window while the process
// was down are resolved and cleaned up instead of rescheduled.
func (e *Exchange) ReloadPlans(ctx context.Context) error {
	configuration, err := config.Fetch()
	if err != nil {
		return err
	}

	plans, err := e.store.All(ctx)
	if err != nil {
		return err
	}

	for _, plan := range plans {
		// The detail goes into a copy: the plan's identity hashes the stored
		// unlock-time snapshot, and refreshing the snapshot in place would
		// orphan the row the terminal removal later deletes by id.
		fresh := plan.Good
		status, _ := e.catalog.GetDetail(ctx, plan.Good.GoodsID, &fresh)
		switch {
		case status == model.StatusGoodNotExist:
			e.dropUnavailable(ctx, plan, configuration.Exchange.Attempts)
			continue
		case status == model.StatusSuccess && (!fresh.Schedulable() || fresh.SoldOut()):
			e.dropUnavailable(ctx, plan, configuration.Exchange.Attempts)
			continue
		}

		if err := e.scheduler.SchedulePlan(ctx, plan); err != nil {
			logrus.Errorf("failed to reschedule plan %s: %v", plan.PlanID(), err)
			notification.NotifyError(err)
		}
	}
	logrus.Infof("reloaded %d plans", len(plans))
	return nil
}

// dropUnavailable resolves a stored plan whose good vanished while the
// process was down. Pre-shutdown attempt tasks are deleted first, and the
// plan is registered before resolving so the tally outlives the single
// notification: a stale task that slipped past the delete then lands silently
// instead of notifying again.
func (e *Exchange) dropUnavailable(ctx context.Context, plan *model.ExchangePlan, attempts int) {
	e.scheduler.CancelPlan(plan.PlanID())
	e.aggregator.Register(plan.PlanID(), attempts)
	e.aggregator.Unavailable(ctx, plan)
}

// ProcessAttempt is the asynq handler for scheduled attempt tasks.
func (e *Exchange) ProcessAttempt(ctx context.Context, t *asynq.Task) error {
	return e.scheduler.ProcessAttempt(ctx, t)
}

// SaveCredential stores or refreshes an account's session credential. A
// missing device identifier is filled in so the fingerprint stays stable for
// the account's lifetime.
func (e *Exchange) SaveCredential(ctx context.Context, cred *model.Credential) error {
	if cred.DeviceID == "" {
		cred.DeviceID = signing.NewDeviceID()
	}
	cred.UpdatedAt = time.Now()
	return e.datasource.SaveCredential(ctx, cred)
}

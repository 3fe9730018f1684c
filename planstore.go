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
	"sync"

	"github.com/kagurabot/exchange/database"
	"github.com/kagurabot/exchange/model"
)

// PlanStore owns the durable collection of redemption plans. It is shared
// between the chat front-end and every firing job; all mutations go through
// a single mutex so a user editing plans cannot race a firing job removing
// one into a lost update.
type PlanStore struct {
	mu sync.Mutex
	ds database.IDataSource
}

// NewPlanStore wraps the datasource in the serialized store facade.
func NewPlanStore(ds database.IDataSource) *PlanStore {
	return &PlanStore{ds: ds}
}

// Add persists a plan. Duplicate composite identities are rejected as a
// conflict by the datasource.
func (s *PlanStore) Add(ctx context.Context, plan *model.ExchangePlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ds.InsertPlan(ctx, plan)
}

// Remove deletes a plan by id and reports whether a plan was actually
// removed. Idempotent: the aggregator relies on the first-removal signal to
// guarantee exactly-once cleanup effects per plan.
func (s *PlanStore) Remove(ctx context.Context, planID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ds.DeletePlan(ctx, planID)
}

// Get fetches one plan by id.
func (s *PlanStore) Get(ctx context.Context, planID string) (*model.ExchangePlan, error) {
	return s.ds.GetPlan(ctx, planID)
}

// List returns the plans owned by one account.
func (s *PlanStore) List(ctx context.Context, accountID string) ([]*model.ExchangePlan, error) {
	return s.ds.ListPlans(ctx, accountID)
}

// All returns every stored plan; used by the startup replay.
func (s *PlanStore) All(ctx context.Context) ([]*model.ExchangePlan, error) {
	return s.ds.AllPlans(ctx)
}

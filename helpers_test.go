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
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/kagurabot/exchange/config"
	"github.com/kagurabot/exchange/internal/apierror"
	"github.com/kagurabot/exchange/model"
)

func mockTestConfig() {
	config.MockConfig(&config.Configuration{
		Mall: config.MallConfig{
			BaseUrl:     "http://mall.test",
			ExchangeUrl: "http://mall.test",
			TimeUrl:     "http://mall.test/common/time",
			AppID:       7,
			PointSn:     "mall",
		},
		Exchange: config.ExchangeConfig{
			Attempts:  3,
			WindowSec: 2,
			JitterMs:  1,
		},
	})
}

func testVirtualPlan(unlockAt time.Time) *model.ExchangePlan {
	return &model.ExchangePlan{
		Good: model.Good{
			GoodsID:    gofakeit.UUID(),
			Name:       gofakeit.ProductName(),
			Type:       model.GoodTypeVirtual,
			UnlockTime: unlockAt.Unix(),
			Stock:      100,
		},
		GameAccount: &model.GameAccount{
			GameBiz: "hk4e_cn",
			UID:     gofakeit.DigitN(9),
			Region:  "cn_gf01",
		},
		AccountID: gofakeit.UUID(),
		UserID:    gofakeit.DigitN(10),
	}
}

// memoryDatasource is an in-memory stand-in for the sqlite datasource, used
// where the test exercises orchestration rather than SQL.
type memoryDatasource struct {
	mu    sync.Mutex
	plans map[string]*model.ExchangePlan
	creds map[string]*model.Credential
}

func newMemoryDatasource() *memoryDatasource {
	return &memoryDatasource{
		plans: make(map[string]*model.ExchangePlan),
		creds: make(map[string]*model.Credential),
	}
}

func (m *memoryDatasource) InsertPlan(_ context.Context, plan *model.ExchangePlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plans[plan.PlanID()]; ok {
		return apierror.NewAPIError(apierror.ErrConflict, "plan already exists", plan.PlanID())
	}
	m.plans[plan.PlanID()] = plan
	return nil
}

func (m *memoryDatasource) DeletePlan(_ context.Context, planID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.plans[planID]
	delete(m.plans, planID)
	return ok, nil
}

func (m *memoryDatasource) GetPlan(_ context.Context, planID string) (*model.ExchangePlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	plan, ok := m.plans[planID]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "plan not found", planID)
	}
	return plan, nil
}

func (m *memoryDatasource) ListPlans(_ context.Context, accountID string) ([]*model.ExchangePlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ExchangePlan
	for _, p := range m.plans {
		if p.AccountID == accountID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memoryDatasource) AllPlans(_ context.Context) ([]*model.ExchangePlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.ExchangePlan, 0, len(m.plans))
	for _, p := range m.plans {
		out = append(out, p)
	}
	return out, nil
}

func (m *memoryDatasource) GetCredential(_ context.Context, accountID string) (*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.creds[accountID]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "credential not found", accountID)
	}
	return cred, nil
}

func (m *memoryDatasource) SaveCredential(_ context.Context, cred *model.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[cred.AccountID] = cred
	return nil
}

// recordingNotifier captures notifications so tests can assert on the
// exactly-once delivery contract.
type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
	users    []string
}

func (r *recordingNotifier) Notify(userID, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userID)
	r.messages = append(r.messages, message)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func (r *recordingNotifier) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		return ""
	}
	return r.messages[len(r.messages)-1]
}

// scriptedEngine plays back a fixed sequence of results, repeating the last
// one once the script runs out, and counts invocations.
type scriptedEngine struct {
	mu      sync.Mutex
	results []*model.ExchangeResult
	calls   int
}

func (s *scriptedEngine) Exchange(_ context.Context, plan *model.ExchangePlan) (model.ExchangeStatus, *model.ExchangeResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	s.calls++
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	result := s.results[idx]
	result.Plan = plan
	return result.Status, result
}

func (s *scriptedEngine) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

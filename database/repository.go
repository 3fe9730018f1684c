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
package database

import (
	"context"

	"github.com/kagurabot/exchange/model"
)

type plan interface {
	InsertPlan(ctx context.Context, plan *model.ExchangePlan) error
	DeletePlan(ctx context.Context, planID string) (bool, error)
	GetPlan(ctx context.Context, planID string) (*model.ExchangePlan, error)
	ListPlans(ctx context.Context, accountID string) ([]*model.ExchangePlan, error)
	AllPlans(ctx context.Context) ([]*model.ExchangePlan, error)
}

type credential interface {
	GetCredential(ctx context.Context, accountID string) (*model.Credential, error)
	SaveCredential(ctx context.Context, cred *model.Credential) error
}

// IDataSource is the storage surface the core depends on.
type IDataSource interface {
	plan
	credential
}

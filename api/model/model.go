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
package model

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/kagurabot/exchange/model"
)

// CreatePlan is the request body for registering a redemption plan. The
// address and game-account blocks are snapshots supplied by the chat
// front-end; whichever one the good's type requires must be present.
type CreatePlan struct {
	GoodsID     string             `json:"goods_id"`
	AccountID   string             `json:"account_id"`
	UserID      string             `json:"user_id"`
	Address     *model.Address     `json:"address,omitempty"`
	GameAccount *model.GameAccount `json:"game_account,omitempty"`
}

func (p *CreatePlan) ValidateCreatePlan() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.GoodsID, validation.Required),
		validation.Field(&p.AccountID, validation.Required),
		validation.Field(&p.UserID, validation.Required),
		validation.Field(&p.Address, validation.By(func(value interface{}) error {
			if p.Address == nil && p.GameAccount == nil {
				return errors.New("either address or game_account is required")
			}
			return nil
		})),
	)
}

// ToPlan converts the request into the core plan shape. The embedded good
// carries only the id; the caller refreshes the rest from the catalog before
// the plan is accepted.
func (p *CreatePlan) ToPlan() *model.ExchangePlan {
	return &model.ExchangePlan{
		Good:        model.Good{GoodsID: p.GoodsID},
		Address:     p.Address,
		GameAccount: p.GameAccount,
		AccountID:   p.AccountID,
		UserID:      p.UserID,
	}
}

// SaveCredential is the request body for storing an account session.
type SaveCredential struct {
	AccountID string `json:"account_id"`
	Cookie    string `json:"cookie"`
	Platform  string `json:"platform,omitempty"`
	DeviceID  string `json:"device_id,omitempty"`
}

func (s *SaveCredential) ValidateSaveCredential() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.AccountID, validation.Required),
		validation.Field(&s.Cookie, validation.Required),
		validation.Field(&s.Platform, validation.In("", "ios", "android")),
	)
}

func (s *SaveCredential) ToCredential() *model.Credential {
	return &model.Credential{
		AccountID: s.AccountID,
		Cookie:    s.Cookie,
		Platform:  s.Platform,
		DeviceID:  s.DeviceID,
	}
}

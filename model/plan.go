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
	"fmt"
	"hash/fnv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Address is a shipping address attached to a community account profile.
// Plans for physical goods carry one by value.
type Address struct {
	ID              string `json:"id"`
	Province        string `json:"province_name"`
	City            string `json:"city_name"`
	County          string `json:"county_name"`
	Detail          string `json:"addr_ext"`
	ConnectName     string `json:"connect_name"`
	ConnectAreacode string `json:"connect_areacode"`
	ConnectMobile   string `json:"connect_mobile"`
}

// FullAddress returns the concatenated human-readable address line.
func (a *Address) FullAddress() string {
	return a.Province + a.City + a.County + a.Detail
}

// GameAccount associates a community account with a player identity in one
// game region. Plans for virtual goods carry one by value; it is resolved at
// plan-creation time and never re-resolved when the plan fires.
type GameAccount struct {
	GameBiz    string `json:"game_biz"`
	UID        string `json:"game_uid"`
	Nickname   string `json:"nickname"`
	Region     string `json:"region"`
	RegionName string `json:"region_name"`
	Level      int    `json:"level"`
}

// ExchangePlan is a durable user intent to redeem one good with one account.
// A plan is an immutable snapshot: the embedded good, address and game account
// are frozen at creation time. Re-creating a plan replaces it; nothing ever
// mutates one in place.
type ExchangePlan struct {
	Good        Good         `json:"good"`
	Address     *Address     `json:"address,omitempty"`
	GameAccount *GameAccount `json:"game_account,omitempty"`
	AccountID   string       `json:"account_id"`
	UserID      string       `json:"user_id"`
	CreatedAt   time.Time    `json:"created_at"`
}

// PlanID derives the plan's identity key from the composite of
// (goods id, unlock-time snapshot, address id, account id, bound game uid).
// Two plans are the same plan iff all five components match; the key doubles
// as the scheduled task name so duplicate registrations collapse.
func (p *ExchangePlan) PlanID() string {
	addressID := ""
	if p.Address != nil {
		addressID = p.Address.ID
	}
	gameUID := ""
	if p.GameAccount != nil {
		gameUID = p.GameAccount.UID
	}
	hasher := fnv.New64a()
	_, _ = fmt.Fprintf(hasher, "%s|%d|%s|%s|%s",
		p.Good.GoodsID, p.Good.UnlockTime, addressID, p.AccountID, gameUID)
	return fmt.Sprintf("plan_%016x", hasher.Sum64())
}

// Equal reports whether two plans share the same composite identity.
func (p *ExchangePlan) Equal(other *ExchangePlan) bool {
	return other != nil && p.PlanID() == other.PlanID()
}

func bindingValidation(p *ExchangePlan) validation.RuleFunc {
	return func(value interface{}) error {
		if p.Good.IsVirtual() {
			if p.GameAccount == nil || p.GameAccount.UID == "" {
				return errors.New("a plan for a virtual good requires a bound game account")
			}
			return nil
		}
		if p.Address == nil || p.Address.ID == "" {
			return errors.New("a plan for a physical good requires a shipping address")
		}
		return nil
	}
}

func schedulableValidation(p *ExchangePlan) validation.RuleFunc {
	return func(value interface{}) error {
		if !p.Good.Schedulable() {
			return errors.New("good has no unlock time and cannot be scheduled")
		}
		return nil
	}
}

// Validate enforces the plan preconditions synchronously, before the plan can
// ever reach the scheduler: a virtual good must carry a game-account binding,
// a physical good must carry an address, and the good itself must be
// schedulable. Violations are creation-time failures, never fire-time ones.
func (p *ExchangePlan) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.AccountID, validation.Required),
		validation.Field(&p.UserID, validation.Required),
		validation.Field(&p.Good, validation.By(func(value interface{}) error {
			if p.Good.GoodsID == "" {
				return errors.New("goods_id is required")
			}
			return nil
		}), validation.By(schedulableValidation(p)), validation.By(bindingValidation(p))),
	)
}

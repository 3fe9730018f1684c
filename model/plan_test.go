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
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeAddress() *Address {
	return &Address{
		ID:            gofakeit.UUID(),
		Province:      gofakeit.State(),
		City:          gofakeit.City(),
		Detail:        gofakeit.Street(),
		ConnectName:   gofakeit.Name(),
		ConnectMobile: gofakeit.Phone(),
	}
}

func fakeGameAccount() *GameAccount {
	return &GameAccount{
		GameBiz:  "hk4e_cn",
		UID:      gofakeit.DigitN(9),
		Nickname: gofakeit.Username(),
		Region:   "cn_gf01",
		Level:    gofakeit.Number(1, 60),
	}
}

func physicalGood(unlock int64) Good {
	return Good{
		GoodsID:    "1001",
		Name:       "limited figure",
		Price:      1200,
		Type:       GoodTypePhysical,
		UnlockTime: unlock,
		Stock:      100,
	}
}

func virtualGood(unlock int64) Good {
	return Good{
		GoodsID:    "2024",
		Name:       "in-game currency pack",
		Price:      680,
		GameBiz:    "hk4e_cn",
		Type:       GoodTypeVirtual,
		UnlockTime: unlock,
		Stock:      StockUnlimited,
	}
}

func TestPlanIDCompositeIdentity(t *testing.T) {
	unlock := time.Now().Add(time.Hour).Unix()
	addr := fakeAddress()

	a := &ExchangePlan{Good: physicalGood(unlock), Address: addr, AccountID: "acct-1", UserID: "user-1"}
	b := &ExchangePlan{Good: physicalGood(unlock), Address: addr, AccountID: "acct-1", UserID: "user-1"}
	assert.Equal(t, a.PlanID(), b.PlanID())
	assert.True(t, a.Equal(b))

	// Any of the five identity components changing yields a different plan.
	c := &ExchangePlan{Good: physicalGood(unlock + 60), Address: addr, AccountID: "acct-1", UserID: "user-1"}
	assert.NotEqual(t, a.PlanID(), c.PlanID())

	d := &ExchangePlan{Good: physicalGood(unlock), Address: fakeAddress(), AccountID: "acct-1", UserID: "user-1"}
	assert.NotEqual(t, a.PlanID(), d.PlanID())

	e := &ExchangePlan{Good: physicalGood(unlock), Address: addr, AccountID: "acct-2", UserID: "user-1"}
	assert.NotEqual(t, a.PlanID(), e.PlanID())

	// The notify target is not part of the identity.
	f := &ExchangePlan{Good: physicalGood(unlock), Address: addr, AccountID: "acct-1", UserID: "user-9"}
	assert.Equal(t, a.PlanID(), f.PlanID())
}

func TestValidateVirtualGoodRequiresGameAccount(t *testing.T) {
	unlock := time.Now().Add(time.Hour).Unix()

	plan := &ExchangePlan{Good: virtualGood(unlock), AccountID: "acct-1", UserID: "user-1"}
	err := plan.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "game account")

	plan.GameAccount = fakeGameAccount()
	assert.NoError(t, plan.Validate())
}

func TestValidatePhysicalGoodRequiresAddress(t *testing.T) {
	unlock := time.Now().Add(time.Hour).Unix()

	plan := &ExchangePlan{Good: physicalGood(unlock), AccountID: "acct-1", UserID: "user-1"}
	err := plan.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address")

	plan.Address = fakeAddress()
	assert.NoError(t, plan.Validate())
}

func TestValidateRejectsUnschedulableGood(t *testing.T) {
	plan := &ExchangePlan{
		Good:      physicalGood(0),
		Address:   fakeAddress(),
		AccountID: "acct-1",
		UserID:    "user-1",
	}
	err := plan.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be scheduled")
}

func TestValidateRequiresOwner(t *testing.T) {
	plan := &ExchangePlan{
		Good:    physicalGood(time.Now().Add(time.Hour).Unix()),
		Address: fakeAddress(),
	}
	assert.Error(t, plan.Validate())
}

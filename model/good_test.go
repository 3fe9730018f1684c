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

	"github.com/stretchr/testify/assert"
)

func TestSchedulableClassification(t *testing.T) {
	// Always-open goods report no unlock time and must never be scheduled.
	anytime := Good{GoodsID: "10", Type: GoodTypeAnytime, UnlockTime: 0, Stock: StockUnlimited}
	assert.False(t, anytime.Schedulable())

	// A finished sale also reports zero unlock time.
	over := Good{GoodsID: "11", Type: GoodTypePhysical, UnlockTime: 0, Stock: 0}
	assert.False(t, over.Schedulable())
	assert.True(t, over.SoldOut())

	gated := Good{GoodsID: "12", Type: GoodTypeVirtual, UnlockTime: time.Now().Add(time.Hour).Unix(), Stock: 50}
	assert.True(t, gated.Schedulable())
	assert.False(t, gated.SoldOut())
	assert.True(t, gated.IsVirtual())
}

func TestUnlockAt(t *testing.T) {
	unlock := time.Now().Add(30 * time.Minute).Truncate(time.Second)
	g := Good{UnlockTime: unlock.Unix()}
	assert.True(t, g.UnlockAt().Equal(unlock))
}

func TestLimitReached(t *testing.T) {
	g := Good{AccountCycleLimit: 1, AccountExchangeNum: 1, AccountCycleType: "forever"}
	assert.True(t, g.LimitReached())

	g = Good{AccountCycleLimit: 2, AccountExchangeNum: 1, AccountCycleType: "month"}
	assert.False(t, g.LimitReached())

	// No cycle limit configured means unlimited.
	g = Good{AccountCycleLimit: 0, AccountExchangeNum: 99}
	assert.False(t, g.LimitReached())
}

func TestRetryableStatuses(t *testing.T) {
	assert.True(t, StatusNetworkError.Retryable())
	assert.False(t, StatusSuccess.Retryable())
	assert.False(t, StatusFailure.Retryable())
	assert.False(t, StatusLoginExpired.Retryable())
	assert.False(t, StatusIncorrectReturn.Retryable())
	assert.False(t, StatusGoodNotExist.Retryable())
}

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
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagurabot/exchange/internal/apierror"
	"github.com/kagurabot/exchange/model"
)

func newMockDatasource(t *testing.T) (Datasource, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return Datasource{Conn: db}, mock
}

func testPlan() *model.ExchangePlan {
	return &model.ExchangePlan{
		Good: model.Good{
			GoodsID:    "1001",
			Name:       "limited figure",
			Price:      1200,
			Type:       model.GoodTypePhysical,
			UnlockTime: time.Now().Add(time.Hour).Unix(),
			Stock:      100,
		},
		Address: &model.Address{
			ID:          gofakeit.UUID(),
			Province:    gofakeit.State(),
			City:        gofakeit.City(),
			Detail:      gofakeit.Street(),
			ConnectName: gofakeit.Name(),
		},
		AccountID: "acct-1",
		UserID:    "user-1",
		CreatedAt: time.Now(),
	}
}

func TestInsertPlan(t *testing.T) {
	ds, mock := newMockDatasource(t)
	plan := testPlan()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO exchange_plans")).
		WithArgs(plan.PlanID(), plan.AccountID, plan.UserID, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, ds.InsertPlan(context.Background(), plan))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertPlanDuplicateIsConflict(t *testing.T) {
	ds, mock := newMockDatasource(t)
	plan := testPlan()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO exchange_plans")).
		WillReturnError(errEmulatedUnique{})

	err := ds.InsertPlan(context.Background(), plan)
	require.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	require.True(t, ok)
	assert.Equal(t, apierror.ErrConflict, apiErr.Code)
}

type errEmulatedUnique struct{}

func (errEmulatedUnique) Error() string {
	return "UNIQUE constraint failed: exchange_plans.plan_id"
}

func TestDeletePlanReportsRemoval(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM exchange_plans")).
		WithArgs("plan_abc").
		WillReturnResult(sqlmock.NewResult(0, 1))
	removed, err := ds.DeletePlan(context.Background(), "plan_abc")
	require.NoError(t, err)
	assert.True(t, removed)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM exchange_plans")).
		WithArgs("plan_abc").
		WillReturnResult(sqlmock.NewResult(0, 0))
	removed, err = ds.DeletePlan(context.Background(), "plan_abc")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestGetPlanRoundTrip(t *testing.T) {
	ds, mock := newMockDatasource(t)
	plan := testPlan()
	snapshot, err := json.Marshal(plan)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT snapshot FROM exchange_plans WHERE plan_id")).
		WithArgs(plan.PlanID()).
		WillReturnRows(sqlmock.NewRows([]string{"snapshot"}).AddRow(string(snapshot)))

	got, err := ds.GetPlan(context.Background(), plan.PlanID())
	require.NoError(t, err)
	assert.Equal(t, plan.PlanID(), got.PlanID())
	assert.Equal(t, plan.Good.GoodsID, got.Good.GoodsID)
	assert.Equal(t, plan.Address.ID, got.Address.ID)
}

func TestGetPlanNotFound(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT snapshot FROM exchange_plans WHERE plan_id")).
		WithArgs("plan_missing").
		WillReturnRows(sqlmock.NewRows([]string{"snapshot"}))

	_, err := ds.GetPlan(context.Background(), "plan_missing")
	require.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	require.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
}

func TestListPlans(t *testing.T) {
	ds, mock := newMockDatasource(t)
	a, b := testPlan(), testPlan()
	b.Good.GoodsID = "2002"
	snapA, _ := json.Marshal(a)
	snapB, _ := json.Marshal(b)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT snapshot FROM exchange_plans WHERE account_id")).
		WithArgs("acct-1").
		WillReturnRows(sqlmock.NewRows([]string{"snapshot"}).
			AddRow(string(snapA)).AddRow(string(snapB)))

	plans, err := ds.ListPlans(context.Background(), "acct-1")
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "1001", plans[0].Good.GoodsID)
	assert.Equal(t, "2002", plans[1].Good.GoodsID)
}

func TestCredentialRoundTrip(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO credentials")).
		WithArgs("acct-1", "session=abc", "DEVICE-ID", "ios", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := ds.SaveCredential(context.Background(), &model.Credential{
		AccountID: "acct-1",
		Cookie:    "session=abc",
		DeviceID:  "DEVICE-ID",
		Platform:  "ios",
	})
	require.NoError(t, err)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT account_id, cookie, device_id, platform, updated_at FROM credentials")).
		WithArgs("acct-1").
		WillReturnRows(sqlmock.NewRows([]string{"account_id", "cookie", "device_id", "platform", "updated_at"}).
			AddRow("acct-1", "session=abc", "DEVICE-ID", "ios", now))

	cred, err := ds.GetCredential(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "session=abc", cred.Cookie)
	assert.False(t, cred.Empty())
}

func TestGetCredentialMissing(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT account_id, cookie, device_id, platform, updated_at FROM credentials")).
		WithArgs("acct-9").
		WillReturnRows(sqlmock.NewRows([]string{"account_id", "cookie", "device_id", "platform", "updated_at"}))

	_, err := ds.GetCredential(context.Background(), "acct-9")
	require.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	require.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
}

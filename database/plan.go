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
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/kagurabot/exchange/internal/apierror"
	"github.com/kagurabot/exchange/model"
)

// InsertPlan stores a plan snapshot under its composite identity key.
// A duplicate plan id is reported as a conflict so callers can tell the user
// the plan already exists instead of silently double-registering it.
func (d Datasource) InsertPlan(ctx context.Context, plan *model.ExchangePlan) error {
	snapshot, err := json.Marshal(plan)
	if err != nil {
		return errors.Wrap(err, "failed to serialize plan snapshot")
	}

	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now()
	}

	_, err = d.Conn.ExecContext(ctx,
		`INSERT INTO exchange_plans (plan_id, account_id, user_id, snapshot, created_at) VALUES (?, ?, ?, ?, ?)`,
		plan.PlanID(), plan.AccountID, plan.UserID, string(snapshot), plan.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apierror.NewAPIError(apierror.ErrConflict, "plan already exists", err)
		}
		return errors.Wrap(err, "failed to insert plan")
	}
	return nil
}

// DeletePlan removes a plan by id. Idempotent: reports whether a row was
// actually removed so the caller can guarantee exactly-once cleanup effects.
func (d Datasource) DeletePlan(ctx context.Context, planID string) (bool, error) {
	res, err := d.Conn.ExecContext(ctx, `DELETE FROM exchange_plans WHERE plan_id = ?`, planID)
	if err != nil {
		return false, errors.Wrap(err, "failed to delete plan")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read delete result")
	}
	return affected > 0, nil
}

// GetPlan fetches one plan snapshot by id.
func (d Datasource) GetPlan(ctx context.Context, planID string) (*model.ExchangePlan, error) {
	row := d.Conn.QueryRowContext(ctx,
		`SELECT snapshot FROM exchange_plans WHERE plan_id = ?`, planID)

	var snapshot string
	if err := row.Scan(&snapshot); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "plan not found", planID)
		}
		return nil, errors.Wrap(err, "failed to get plan")
	}
	return unmarshalPlan(snapshot)
}

// ListPlans returns the plans owned by one account, oldest first.
func (d Datasource) ListPlans(ctx context.Context, accountID string) ([]*model.ExchangePlan, error) {
	rows, err := d.Conn.QueryContext(ctx,
		`SELECT snapshot FROM exchange_plans WHERE account_id = ? ORDER BY created_at ASC`, accountID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list plans")
	}
	return scanPlans(rows)
}

// AllPlans returns every stored plan; used by the startup replay.
func (d Datasource) AllPlans(ctx context.Context) ([]*model.ExchangePlan, error) {
	rows, err := d.Conn.QueryContext(ctx,
		`SELECT snapshot FROM exchange_plans ORDER BY created_at ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list all plans")
	}
	return scanPlans(rows)
}

func scanPlans(rows *sql.Rows) ([]*model.ExchangePlan, error) {
	defer func() {
		_ = rows.Close()
	}()

	var plans []*model.ExchangePlan
	for rows.Next() {
		var snapshot string
		if err := rows.Scan(&snapshot); err != nil {
			return nil, errors.Wrap(err, "failed to scan plan row")
		}
		plan, err := unmarshalPlan(snapshot)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

func unmarshalPlan(snapshot string) (*model.ExchangePlan, error) {
	var plan model.ExchangePlan
	if err := json.Unmarshal([]byte(snapshot), &plan); err != nil {
		return nil, errors.Wrap(err, "corrupt plan snapshot")
	}
	return &plan, nil
}

func isUniqueViolation(err error) bool {
	// sqlite reports constraint violations in the error text; the driver
	// does not expose a typed code through database/sql.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

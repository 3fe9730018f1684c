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
	"time"

	"github.com/pkg/errors"

	"github.com/kagurabot/exchange/internal/apierror"
	"github.com/kagurabot/exchange/model"
)

// GetCredential returns the stored session credential for one account.
// The login flow that produces credentials lives outside this module; the
// core only ever reads them.
func (d Datasource) GetCredential(ctx context.Context, accountID string) (*model.Credential, error) {
	row := d.Conn.QueryRowContext(ctx,
		`SELECT account_id, cookie, device_id, platform, updated_at FROM credentials WHERE account_id = ?`,
		accountID)

	cred := &model.Credential{}
	err := row.Scan(&cred.AccountID, &cred.Cookie, &cred.DeviceID, &cred.Platform, &cred.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "no credential for account", accountID)
		}
		return nil, errors.Wrap(err, "failed to get credential")
	}
	return cred, nil
}

// SaveCredential upserts an account's session credential. Called by the
// login collaborator when the user (re)authenticates.
func (d Datasource) SaveCredential(ctx context.Context, cred *model.Credential) error {
	cred.UpdatedAt = time.Now()
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO credentials (account_id, cookie, device_id, platform, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			cookie = excluded.cookie,
			device_id = excluded.device_id,
			platform = excluded.platform,
			updated_at = excluded.updated_at`,
		cred.AccountID, cred.Cookie, cred.DeviceID, cred.Platform, cred.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to save credential")
	}
	return nil
}

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

import "encoding/json"

// ExchangeStatus classifies the outcome of one exchange attempt or catalog
// lookup. The classes are mutually exclusive; the engine assigns exactly one
// per attempt, in the priority order documented on each constant.
type ExchangeStatus string

const (
	// StatusLoginExpired means the account's session credential is no longer
	// valid. Checked first: every further attempt with the same credential is
	// guaranteed to fail, so callers must stop retrying and prompt re-login.
	StatusLoginExpired ExchangeStatus = "login_expired"

	// StatusSuccess means the server accepted the redemption. The only
	// outcome that removes the plan with a success notification.
	StatusSuccess ExchangeStatus = "success"

	// StatusFailure means the request completed but the server rejected the
	// redemption on business grounds (out of stock, already redeemed this
	// cycle, not yet open). The server's own message is passed through.
	StatusFailure ExchangeStatus = "failure"

	// StatusIncorrectReturn means the response body did not match the
	// expected shape (schema drift). Logged with the raw body; not retried
	// within the same attempt.
	StatusIncorrectReturn ExchangeStatus = "incorrect_return"

	// StatusNetworkError covers timeouts and connection failures. Retryable
	// within the scheduler's post-open window.
	StatusNetworkError ExchangeStatus = "network_error"

	// StatusGoodNotExist is reported by the catalog when a good has been
	// delisted. Terminal: drives plan cleanup, never retried.
	StatusGoodNotExist ExchangeStatus = "good_not_existed"
)

// Retryable reports whether a status may be retried within a plan's firing
// window. Only transport-level failures qualify; business rejections and
// schema drift are left to the outer scheduling policy.
func (s ExchangeStatus) Retryable() bool {
	return s == StatusNetworkError
}

// ExchangeResult is the outcome of a single exchange attempt. Ephemeral:
// consumed immediately by the result aggregator, never persisted.
type ExchangeResult struct {
	Status  ExchangeStatus  `json:"status"`
	Retcode int             `json:"retcode"`
	Message string          `json:"message"`
	Body    json.RawMessage `json:"-"`
	Plan    *ExchangePlan   `json:"-"`
}

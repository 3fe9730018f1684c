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
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kagurabot/exchange/config"
	"github.com/kagurabot/exchange/internal/apierror"
	"github.com/kagurabot/exchange/internal/request"
	"github.com/kagurabot/exchange/internal/signing"
	"github.com/kagurabot/exchange/model"
)

// Retcodes the exchange endpoint reports. Login-expiry codes come first in
// classification: once the session is dead every retry is a guaranteed loss.
const (
	retcodeLoginExpired  = -100
	retcodeTokenInvalid  = 10001
	retcodeNotInSaleTime = -830 // submitted before the mall actually opened the item
)

// Engine performs exactly one redemption submission for a plan and
// classifies the result. Implementations must be side-effect free beyond the
// outbound HTTP call: no store mutation, no user notification.
type Engine interface {
	Exchange(ctx context.Context, plan *model.ExchangePlan) (model.ExchangeStatus, *model.ExchangeResult)
}

// CredentialStore supplies session credentials per account. The core only
// reads; the login flow that writes them lives outside this module.
type CredentialStore interface {
	GetCredential(ctx context.Context, accountID string) (*model.Credential, error)
}

// ExchangeEngine submits redemption requests against the mall exchange
// endpoint with signed headers.
type ExchangeEngine struct {
	client      *http.Client
	credentials CredentialStore
	signer      *signing.Builder
	now         func() time.Time
}

// NewExchangeEngine builds an engine. now supplies the drift-corrected clock
// used in the request signature.
func NewExchangeEngine(credentials CredentialStore, signer *signing.Builder, now func() time.Time) (*ExchangeEngine, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	return &ExchangeEngine{
		client:      request.NewClient(time.Duration(cfg.Mall.TimeoutSec) * time.Second),
		credentials: credentials,
		signer:      signer,
		now:         now,
	}, nil
}

// exchangeRequest is the submission body. Address and game-account fields
// come straight from the plan's embedded snapshot; nothing is re-resolved at
// call time.
type exchangeRequest struct {
	AppID       int    `json:"app_id"`
	PointSn     string `json:"point_sn"`
	GoodsID     string `json:"goods_id"`
	ExchangeNum int    `json:"exchange_num"`
	AddressID   string `json:"address_id,omitempty"`
	UID         string `json:"uid,omitempty"`
	Region      string `json:"region,omitempty"`
	GameBiz     string `json:"game_biz,omitempty"`
}

// Exchange performs one redemption submission attempt for the plan.
//
// The outcome is classified into exactly one status, checked in priority
// order: login expiry, server-accepted success, server-rejected business
// failure, unexpected response shape, transport failure.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - plan *model.ExchangePlan: The plan to redeem; treated as read-only.
//
// Returns:
// - model.ExchangeStatus: The outcome class.
// - *model.ExchangeResult: The outcome details, always non-nil.
func (e *ExchangeEngine) Exchange(ctx context.Context, plan *model.ExchangePlan) (model.ExchangeStatus, *model.ExchangeResult) {
	result := &model.ExchangeResult{Plan: plan}

	cfg, err := config.Fetch()
	if err != nil {
		result.Status = model.StatusNetworkError
		result.Message = err.Error()
		return result.Status, result
	}

	cred, err := e.credentials.GetCredential(ctx, plan.AccountID)
	if err != nil {
		if apiErr, ok := err.(apierror.APIError); ok && apiErr.Code == apierror.ErrNotFound {
			// No usable session is the same terminal state as an expired
			// one: the user has to log in again before this plan can
			// ever succeed.
			result.Status = model.StatusLoginExpired
			result.Message = "no session credential for account"
			return result.Status, result
		}
		result.Status = model.StatusNetworkError
		result.Message = err.Error()
		return result.Status, result
	}
	if cred.Empty() {
		result.Status = model.StatusLoginExpired
		result.Message = "no valid session credential for account"
		return result.Status, result
	}

	body := exchangeRequest{
		AppID:       cfg.Mall.AppID,
		PointSn:     cfg.Mall.PointSn,
		GoodsID:     plan.Good.GoodsID,
		ExchangeNum: 1,
	}
	if plan.Good.IsVirtual() {
		if plan.GameAccount != nil {
			body.UID = plan.GameAccount.UID
			body.Region = plan.GameAccount.Region
			body.GameBiz = plan.GameAccount.GameBiz
		}
	} else if plan.Address != nil {
		body.AddressID = plan.Address.ID
	}

	payload, err := request.ToJsonReq(&body)
	if err != nil {
		result.Status = model.StatusIncorrectReturn
		result.Message = err.Error()
		return result.Status, result
	}
	rawBody := payload.String()

	req, err := http.NewRequestWithContext(ctx, "POST", cfg.Mall.ExchangeUrl+"/goods/exchange", payload)
	if err != nil {
		result.Status = model.StatusNetworkError
		result.Message = err.Error()
		return result.Status, result
	}
	req.Header = e.signer.Headers(platformOf(cred), cred.Cookie, cred.DeviceID, rawBody, "", e.now())

	var envelope mallResponse
	if _, err := request.Call(e.client, req, &envelope); err != nil {
		if de, ok := request.IsDecodeError(err); ok {
			logrus.WithField("body", string(de.Body)).Debug("exchange response did not match expected shape")
			result.Status = model.StatusIncorrectReturn
			result.Message = err.Error()
			result.Body = de.Body
			return result.Status, result
		}
		result.Status = model.StatusNetworkError
		result.Message = err.Error()
		return result.Status, result
	}

	result.Retcode = envelope.Retcode
	result.Message = envelope.Message
	result.Body = envelope.Data

	switch envelope.Retcode {
	case retcodeLoginExpired, retcodeTokenInvalid:
		result.Status = model.StatusLoginExpired
	case retcodeOK:
		result.Status = model.StatusSuccess
	default:
		result.Status = model.StatusFailure
	}
	return result.Status, result
}

// TooEarly reports whether a business failure was the mall rejecting a
// submission ahead of the item actually opening. The post-open retry window
// exists to absorb exactly this.
func TooEarly(result *model.ExchangeResult) bool {
	return result != nil && result.Status == model.StatusFailure && result.Retcode == retcodeNotInSaleTime
}

func platformOf(cred *model.Credential) signing.Platform {
	if cred.Platform == string(signing.PlatformAndroid) {
		return signing.PlatformAndroid
	}
	return signing.PlatformIOS
}

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

// Package timesync keeps a best-effort offset between the local clock and the
// mall's server clock. Exchange eligibility is judged server-side against
// wall-clock time; a few hundred milliseconds of local drift is enough to
// collect "too early" rejections at the unlock instant.
package timesync

import (
	"context"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/kagurabot/exchange/internal/request"
)

const maxSyncRetries = 3

// TimeSync holds the measured clock offset. Now is lock-free: the offset is a
// single atomic value read on every scheduling decision and inside the
// redemption attempt loop.
type TimeSync struct {
	timeUrl  string
	client   *http.Client
	offsetNs atomic.Int64
	synced   atomic.Bool
}

type serverTimeResponse struct {
	Retcode int    `json:"retcode"`
	Message string `json:"message"`
	Data    struct {
		// Server time in unix milliseconds, sent as a string.
		T string `json:"t"`
	} `json:"data"`
}

// New creates a TimeSync against the given server-time endpoint. The offset
// starts at zero, so Now is usable before the first Sync completes.
func New(timeUrl string, timeout time.Duration) *TimeSync {
	return &TimeSync{
		timeUrl: timeUrl,
		client:  request.NewClient(timeout),
	}
}

// Sync queries the server-time endpoint and stores offset = remote - local.
// Transient failures are retried a bounded number of times with exponential
// backoff. If every attempt fails the offset falls back to zero (pure local
// time) and a warning is logged; the returned error is advisory and must
// never be treated as fatal.
func (t *TimeSync) Sync(ctx context.Context) error {
	operation := func() error {
		return t.syncOnce(ctx)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxSyncRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		t.offsetNs.Store(0)
		t.synced.Store(false)
		logrus.Warnf("time sync failed, falling back to local clock: %v", err)
		return err
	}
	return nil
}

func (t *TimeSync) syncOnce(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", t.timeUrl, nil)
	if err != nil {
		return backoff.Permanent(err)
	}

	before := time.Now()
	var body serverTimeResponse
	_, err = request.Call(t.client, req, &body)
	after := time.Now()
	if err != nil {
		return err
	}
	if body.Retcode != 0 {
		return errors.Errorf("time endpoint returned retcode %d: %s", body.Retcode, body.Message)
	}

	remoteMs, err := strconv.ParseInt(body.Data.T, 10, 64)
	if err != nil {
		return errors.Wrap(err, "unparseable server time")
	}

	// Approximate the local instant the server stamped its reply as the
	// midpoint of the round trip.
	local := before.Add(after.Sub(before) / 2)
	remote := time.UnixMilli(remoteMs)
	t.offsetNs.Store(int64(remote.Sub(local)))
	t.synced.Store(true)

	logrus.Infof("time sync complete, offset=%s", t.Offset())
	return nil
}

// Now returns the drift-corrected current time: local time plus the last
// measured offset. Cheap and lock-free.
func (t *TimeSync) Now() time.Time {
	return time.Now().Add(t.Offset())
}

// Offset returns the last measured clock offset; zero before a successful
// sync or after a failed one.
func (t *TimeSync) Offset() time.Duration {
	return time.Duration(t.offsetNs.Load())
}

// Synced reports whether the offset comes from a successful measurement.
func (t *TimeSync) Synced() bool {
	return t.synced.Load()
}

// StartPeriodic re-syncs on the given interval until the context is
// cancelled. Failures inside the loop are already soft.
func (t *TimeSync) StartPeriodic(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = t.Sync(ctx)
			}
		}
	}()
}

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
package timesync

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const timeUrl = "https://mall.example.com/common/time"

func TestSyncMeasuresOffset(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	// Server clock runs two seconds ahead of the local clock.
	httpmock.RegisterResponder("GET", timeUrl, func(req *http.Request) (*http.Response, error) {
		remote := time.Now().Add(2 * time.Second).UnixMilli()
		body := fmt.Sprintf(`{"retcode":0,"message":"OK","data":{"t":"%d"}}`, remote)
		return httpmock.NewStringResponse(200, body), nil
	})

	ts := New(timeUrl, time.Second)
	require.NoError(t, ts.Sync(context.Background()))
	assert.True(t, ts.Synced())
	assert.InDelta(t, (2 * time.Second).Seconds(), ts.Offset().Seconds(), 0.5)
	assert.InDelta(t, float64(time.Now().Add(2*time.Second).Unix()), float64(ts.Now().Unix()), 1)
}

func TestSyncFailureFallsBackToLocalClock(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", timeUrl,
		httpmock.NewErrorResponder(fmt.Errorf("connection refused")))

	ts := New(timeUrl, time.Second)
	err := ts.Sync(context.Background())
	assert.Error(t, err)
	assert.False(t, ts.Synced())

	// Now() must still be usable and equal to the local clock.
	assert.Equal(t, time.Duration(0), ts.Offset())
	assert.WithinDuration(t, time.Now(), ts.Now(), 100*time.Millisecond)
}

func TestSyncRejectsBadRetcode(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", timeUrl,
		httpmock.NewStringResponder(200, `{"retcode":-1,"message":"rate limited"}`))

	ts := New(timeUrl, time.Second)
	assert.Error(t, ts.Sync(context.Background()))
	assert.Equal(t, time.Duration(0), ts.Offset())
}

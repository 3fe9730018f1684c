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
package signing

import (
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testConfig = HeaderConfig{
	AppVersion:       "2.44.1",
	SaltIOS:          "ios-salt-value",
	SaltAndroid:      "android-salt-value",
	UserAgentIOS:     "Mozilla/5.0 (iPhone; CPU iPhone OS 16_2) mallapp/2.44.1",
	UserAgentAndroid: "Mozilla/5.0 (Linux; Android 13) mallapp/2.44.1",
	Referer:          "https://app.example.com/",
}

var dsPattern = regexp.MustCompile(`^(\d+),(\d+),([0-9a-f]{32})$`)

func TestDSFormatAndVerifiability(t *testing.T) {
	b := NewBuilder(testConfig)
	now := time.Unix(1735689600, 0)

	ds := b.DS(PlatformIOS, `{"goods_id":"1001"}`, "", now)
	m := dsPattern.FindStringSubmatch(ds)
	require.NotNil(t, m, "DS should be t,r,checksum: %s", ds)

	ts, err := strconv.ParseInt(m[1], 10, 64)
	require.NoError(t, err)
	assert.Equal(t, now.Unix(), ts)

	r, err := strconv.Atoi(m[2])
	require.NoError(t, err)
	assert.Equal(t, m[3], Digest(testConfig.SaltIOS, ts, r, `{"goods_id":"1001"}`, ""))
}

func TestDigestIsDeterministic(t *testing.T) {
	a := Digest("salt", 100, 123456, "body", "query")
	b := Digest("salt", 100, 123456, "body", "query")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, Digest("other-salt", 100, 123456, "body", "query"))
}

func TestHeadersPerPlatform(t *testing.T) {
	b := NewBuilder(testConfig)
	now := time.Now()
	device := NewDeviceID()

	ios := b.Headers(PlatformIOS, "session=abc", device, "", "", now)
	assert.Equal(t, "1", ios.Get("x-rpc-client_type"))
	assert.Equal(t, testConfig.UserAgentIOS, ios.Get("User-Agent"))
	assert.Equal(t, "session=abc", ios.Get("Cookie"))
	assert.Equal(t, device, ios.Get("x-rpc-device_id"))

	android := b.Headers(PlatformAndroid, "session=abc", device, "", "", now)
	assert.Equal(t, "2", android.Get("x-rpc-client_type"))
	assert.Equal(t, testConfig.UserAgentAndroid, android.Get("User-Agent"))
	assert.NotEmpty(t, android.Get("DS"))
}

func TestNewDeviceIDShape(t *testing.T) {
	id := NewDeviceID()
	assert.Len(t, id, 36)
	assert.Equal(t, strings.ToUpper(id), id)
	assert.NotEqual(t, id, NewDeviceID())
}

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

// Package signing produces the per-request authentication headers the mall
// API expects: a device fingerprint, platform identification, and a salted
// digest ("DS") over the request content and timestamp.
//
// The header set is built by a pure function over an immutable HeaderConfig;
// nothing here mutates shared state, so concurrent attempts can sign requests
// without coordination.
package signing

import (
	"crypto/md5" //nolint:gosec // digest format is dictated by the remote API
	"encoding/hex"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Platform selects which device profile a request impersonates.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

// ClientType returns the mall's numeric client-type code for the platform.
func (p Platform) ClientType() string {
	if p == PlatformAndroid {
		return "2"
	}
	return "1"
}

// HeaderConfig carries the static signing material: app version, per-platform
// salts and user-agent templates. Build it once during initialization and
// pass it by reference; it is never modified afterwards.
type HeaderConfig struct {
	AppVersion       string
	SaltIOS          string
	SaltAndroid      string
	UserAgentIOS     string
	UserAgentAndroid string
	Referer          string
}

// DefaultHeaderConfig returns the signing material for the current mall app
// release. Bump these together when the app updates; a stale version string
// with a fresh salt gets rejected server-side.
func DefaultHeaderConfig() HeaderConfig {
	return HeaderConfig{
		AppVersion:       "2.71.1",
		SaltIOS:          "t0qEgfub6cvueAPgR5m9aQWWVciEer7v",
		SaltAndroid:      "xV8v4Qu54lUKrEYFZkJhB8cuOh9Asafs",
		UserAgentIOS:     "Mall/2.71.1 (iPhone; iOS 16.6; Scale/3.00)",
		UserAgentAndroid: "okhttp/4.9.3",
		Referer:          "https://app.mall.example.com",
	}
}

// Builder signs requests against one HeaderConfig.
type Builder struct {
	cfg HeaderConfig
}

// NewBuilder returns a Builder over the given immutable config.
func NewBuilder(cfg HeaderConfig) *Builder {
	return &Builder{cfg: cfg}
}

// NewDeviceID generates an uppercase device identifier in the format the
// mall's apps use. Generated once per account and persisted alongside the
// session credential so the fingerprint stays stable across requests.
func NewDeviceID() string {
	return strings.ToUpper(uuid.New().String())
}

func (b *Builder) salt(p Platform) string {
	if p == PlatformAndroid {
		return b.cfg.SaltAndroid
	}
	return b.cfg.SaltIOS
}

func (b *Builder) userAgent(p Platform) string {
	if p == PlatformAndroid {
		return b.cfg.UserAgentAndroid
	}
	return b.cfg.UserAgentIOS
}

// Digest computes the salted checksum component of a DS value. Pure function
// of its inputs; exported so tests and callers can verify a DS.
func Digest(salt string, t int64, r int, body, query string) string {
	raw := fmt.Sprintf("salt=%s&t=%d&r=%d&b=%s&q=%s", salt, t, r, body, query)
	sum := md5.Sum([]byte(raw)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// DS builds the full "t,r,checksum" signature for the given request content
// at the given instant. The random component spreads concurrent attempts.
func (b *Builder) DS(p Platform, body, query string, now time.Time) string {
	t := now.Unix()
	r := rand.Intn(100000) + 100000
	return fmt.Sprintf("%d,%d,%s", t, r, Digest(b.salt(p), t, r, body, query))
}

// Headers produces the complete authenticated header set for one request.
//
// Parameters:
// - p Platform: The device profile to impersonate.
// - credential string: The account's opaque session cookie blob.
// - deviceID string: The persisted per-account device identifier.
// - body string: The serialized request body ("" for GET).
// - query string: The sorted query string ("" when absent).
// - now time.Time: The drift-corrected current time used in the signature.
//
// Returns:
// - http.Header: Headers ready to attach to the outbound request.
func (b *Builder) Headers(p Platform, credential, deviceID, body, query string, now time.Time) http.Header {
	h := http.Header{}
	h.Set("Cookie", credential)
	h.Set("User-Agent", b.userAgent(p))
	h.Set("Referer", b.cfg.Referer)
	h.Set("x-rpc-app_version", b.cfg.AppVersion)
	h.Set("x-rpc-client_type", p.ClientType())
	h.Set("x-rpc-device_id", deviceID)
	h.Set("x-rpc-channel", "appstore")
	h.Set("DS", b.DS(p, body, query, now))
	return h
}

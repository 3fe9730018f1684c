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

import "time"

// Credential is the opaque session state for one community account, produced
// by the out-of-scope SMS login flow. The core only reads it: the cookie blob
// is attached to requests unmodified and the device id keeps the signing
// fingerprint stable across requests.
type Credential struct {
	AccountID string    `json:"account_id"`
	Cookie    string    `json:"cookie"`
	DeviceID  string    `json:"device_id"`
	Platform  string    `json:"platform"` // "ios" or "android"
	UpdatedAt time.Time `json:"updated_at"`
}

// Empty reports whether the credential carries no usable session.
func (c *Credential) Empty() bool {
	return c == nil || c.Cookie == ""
}

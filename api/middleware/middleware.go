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

// Package middleware guards the plugin's HTTP surface: shared-secret
// authentication for split deployments where the chat front-end and this
// backend run on different hosts, and per-client rate limiting so one chatty
// user cannot burn the mall request quota for everyone else.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/didip/tollbooth/v7"
	"github.com/didip/tollbooth/v7/limiter"
	"github.com/gin-gonic/gin"

	"github.com/kagurabot/exchange/config"
)

const secretHeader = "X-Exchange-Key"

// RateLimitMiddleware limits requests per client IP. Both an RPS and a burst
// must be configured; with either unset the middleware passes everything
// through, which is the default for a single-user bot host.
func RateLimitMiddleware(conf *config.Configuration) gin.HandlerFunc {
	if conf.RateLimit.RequestsPerSecond == nil || conf.RateLimit.Burst == nil {
		return func(c *gin.Context) { c.Next() }
	}

	ttl := time.Minute
	if conf.RateLimit.CleanupIntervalSec != nil {
		ttl = time.Duration(*conf.RateLimit.CleanupIntervalSec) * time.Second
	}
	lim := tollbooth.NewLimiter(*conf.RateLimit.RequestsPerSecond,
		&limiter.ExpirableOptions{DefaultExpirationTTL: ttl})
	lim.SetBurst(*conf.RateLimit.Burst)

	return func(c *gin.Context) {
		if httpError := tollbooth.LimitByRequest(lim, c.Writer, c.Request); httpError != nil {
			c.AbortWithStatusJSON(httpError.StatusCode, gin.H{"error": httpError.Message})
			return
		}
		c.Next()
	}
}

// SecretKeyAuthMiddleware rejects requests that do not carry the configured
// shared secret in the X-Exchange-Key header. The comparison is constant
// time, so the key cannot be guessed byte by byte off response timing.
func SecretKeyAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		conf, err := config.Fetch()
		if err != nil || conf.Server.SecretKey == "" {
			// Secure mode without a key is a deployment mistake; failing
			// closed beats silently serving an unauthenticated API.
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Secret key is not configured"})
			return
		}

		supplied := c.GetHeader(secretHeader)
		if supplied == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing secret key"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(conf.Server.SecretKey), []byte(supplied)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid secret key"})
			return
		}

		c.Next()
	}
}

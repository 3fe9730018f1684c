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

// Package notification is the outbound message sink for the exchange core.
// The core emits exactly one terminal message per plan and does not know
// whether it becomes a chat reply, a push notification or a log line.
package notification

import (
	"log"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kagurabot/exchange/config"
	"github.com/kagurabot/exchange/internal/request"
)

// Notifier delivers one text message to one user. Implementations must be
// safe for concurrent use; delivery is fire-and-forget from the caller's
// perspective.
type Notifier interface {
	Notify(userID, message string)
}

// LogNotifier writes notifications to the process log. Used as the fallback
// sink and in tests.
type LogNotifier struct{}

func (LogNotifier) Notify(userID, message string) {
	logrus.WithField("user_id", userID).Info(message)
}

// WebhookNotifier POSTs each notification to the configured webhook so the
// chat front-end can relay it. Delivery errors are logged, never propagated:
// a dead webhook must not affect plan bookkeeping.
type WebhookNotifier struct {
	client *http.Client
}

// NewWebhookNotifier returns a webhook-backed Notifier with a short delivery
// timeout.
func NewWebhookNotifier() *WebhookNotifier {
	return &WebhookNotifier{client: request.NewClient(10 * time.Second)}
}

type webhookMessage struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

func (w *WebhookNotifier) Notify(userID, message string) {
	conf, err := config.Fetch()
	if err != nil {
		log.Println(err)
		return
	}
	if conf.Notification.Webhook.Url == "" {
		LogNotifier{}.Notify(userID, message)
		return
	}

	payload, err := request.ToJsonReq(&webhookMessage{UserID: userID, Message: message})
	if err != nil {
		log.Println(err)
		return
	}

	req, err := http.NewRequest("POST", conf.Notification.Webhook.Url, payload)
	if err != nil {
		log.Println(err)
		return
	}
	for key, value := range conf.Notification.Webhook.Headers {
		req.Header.Set(key, value)
	}

	var response map[string]interface{}
	if _, err := request.Call(w.client, req, &response); err != nil {
		logrus.Warnf("webhook notification failed for user %s: %v", userID, err)
	}
}

// NotifyError reports an internal error through the process log and, when a
// webhook is configured, to the operator channel. Runs asynchronously to
// avoid blocking the caller.
func NotifyError(systemError error) {
	go func(systemError error) {
		logrus.Error(systemError)

		conf, err := config.Fetch()
		if err != nil {
			log.Println(err)
			return
		}
		if conf.Notification.Webhook.Url != "" {
			NewWebhookNotifier().Notify("system", systemError.Error())
		}
	}(systemError)
}

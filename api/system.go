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
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	model2 "github.com/kagurabot/exchange/api/model"
	"github.com/kagurabot/exchange/internal/apierror"
)

func (a Api) SaveCredential(c *gin.Context) {
	var cred model2.SaveCredential
	if err := c.ShouldBindJSON(&cred); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := cred.ValidateSaveCredential(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := a.exchange.SaveCredential(c.Request.Context(), cred.ToCredential()); err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "credential saved"})
}

// SyncTime triggers an on-demand clock measurement. Sync failure is reported
// but the subsystem keeps running on the local clock, so this never errors
// the request.
func (a Api) SyncTime(c *gin.Context) {
	err := a.exchange.SyncTime(c.Request.Context())
	resp := gin.H{"offset": a.exchange.ClockOffset().String()}
	if err != nil {
		resp["warning"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) GetClock(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"offset": a.exchange.ClockOffset().String()})
}

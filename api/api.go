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

// Package api exposes the plan and catalog operations over HTTP for the chat
// front-end.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/kagurabot/exchange"
	"github.com/kagurabot/exchange/api/middleware"
	"github.com/kagurabot/exchange/config"
)

type Api struct {
	exchange *exchange.Exchange
	router   *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.GET("/goods", a.ListGoods)
	router.GET("/goods/search", a.SearchGoods)
	router.GET("/goods/:id", a.GetGood)

	router.POST("/plans", a.CreatePlan)
	router.GET("/plans", a.ListPlans)
	router.GET("/plans/:id", a.GetPlan)
	router.DELETE("/plans/:id", a.CancelPlan)

	router.POST("/credentials", a.SaveCredential)

	router.POST("/time/sync", a.SyncTime)
	router.GET("/time", a.GetClock)
	return a.router
}

func NewAPI(e *exchange.Exchange) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}
	r.Use(middleware.RateLimitMiddleware(conf))

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{exchange: e, router: r}
}

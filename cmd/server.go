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

package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/kagurabot/exchange/api"
	"github.com/kagurabot/exchange/config"
)

func initializeRouter(app *appInstance) *gin.Engine {
	return api.NewAPI(app.exchange).Router()
}

func startServer(router *gin.Engine, cfg config.ServerConfig) error {
	log.Printf("Starting server on http://localhost:%s", cfg.Port)
	return router.Run(":" + cfg.Port)
}

// serverCommands returns the Cobra command responsible for starting the HTTP
// API. The server process only accepts and stores plans; firing them is the
// worker process's job.
func serverCommands(app *appInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start exchange api server",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			router := initializeRouter(app)

			cfg, err := config.Fetch()
			if err != nil {
				log.Fatal(err)
			}

			// Measure the server clock before the first plan is accepted so
			// creation-time scheduling already uses the corrected clock.
			app.exchange.StartTimeSync(ctx)

			if err := startServer(router, cfg.Server); err != nil {
				log.Fatal(err)
			}
		},
	}

	return cmd
}

// timeCommands returns a utility command that measures and prints the current
// clock offset against the mall, for operators checking host drift.
func timeCommands(app *appInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "time",
		Short: "measure clock offset against the mall server",
		Run: func(cmd *cobra.Command, args []string) {
			if err := app.exchange.SyncTime(context.Background()); err != nil {
				log.Printf("sync failed, running on local clock: %v", err)
			}
			log.Printf("clock offset: %s", app.exchange.ClockOffset())
		},
	}

	return cmd
}

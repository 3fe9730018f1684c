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
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kagurabot/exchange"
	"github.com/kagurabot/exchange/config"
	"github.com/kagurabot/exchange/database"
	"github.com/kagurabot/exchange/internal/notification"
)

// CLI encapsulates the root Cobra command.
type CLI struct {
	cmd *cobra.Command
}

// appInstance holds the runtime Exchange instance and its configuration,
// shared by all subcommands.
type appInstance struct {
	exchange *exchange.Exchange
	cnf      *config.Configuration
}

// recoverPanic handles any panics during program execution and logs the error using Logrus.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun sets up the configuration and initializes the Exchange instance
// before running any command.
func preRun(app *appInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("exchange.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newExchange, err := setupExchange(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.exchange = newExchange
		app.cnf = cnf

		return nil
	}
}

// setupExchange creates and initializes a new Exchange instance based on the
// provided configuration.
func setupExchange(cfg *config.Configuration) (*exchange.Exchange, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newExchange, err := exchange.NewExchange(db)
	if err != nil {
		return nil, fmt.Errorf("error creating exchange: %v", err)
	}
	return newExchange, nil
}

// NewCLI creates the command-line interface for the exchange plugin backend.
func NewCLI() *CLI {
	var configFile string
	app := &appInstance{}

	var rootCmd = &cobra.Command{
		Use:   "exchange",
		Short: "timed redemption backend for the community mall",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./exchange.json", "Configuration file for the exchange backend")

	rootCmd.PersistentPreRunE = preRun(app)

	rootCmd.AddCommand(serverCommands(app))
	rootCmd.AddCommand(workerCommands(app))
	rootCmd.AddCommand(timeCommands(app))

	return &CLI{cmd: rootCmd}
}

func (w CLI) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}

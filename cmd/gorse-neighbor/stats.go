// Copyright 2022 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"io"
	"os"
	"strconv"

	"github.com/gorse-io/neighbor/base/log"
	"github.com/gorse-io/neighbor/dataset"
	"github.com/gorse-io/neighbor/matrix"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var statsCommand = &cobra.Command{
	Use:   "stats",
	Short: "Show statistics of the configured dataset.",
	Run: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		log.SetLogger(cmd.Flags(), debug)
		defer log.CloseLogger()
		conf := loadConfig(cmd)
		d, err := dataset.Load(context.Background(), conf.Dataset)
		if err != nil {
			log.Logger().Fatal("failed to load dataset", zap.Error(err))
		}
		m, err := d.Build()
		if err != nil {
			log.Logger().Fatal("failed to build rating matrix", zap.Error(err))
		}
		if err = printStats(os.Stdout, m); err != nil {
			log.Logger().Fatal("failed to print statistics", zap.Error(err))
		}
	},
}

func printStats(w io.Writer, m *matrix.Matrix) error {
	capacityUsers, capacityItems := m.Shape()
	table := tablewriter.NewWriter(w)
	table.Header("status", "value")
	for _, row := range [][]string{
		{"users", strconv.Itoa(m.CountUsers())},
		{"items", strconv.Itoa(m.CountItems())},
		{"ratings", strconv.Itoa(m.CountRatings())},
		{"capacity_users", strconv.Itoa(capacityUsers)},
		{"capacity_items", strconv.Itoa(capacityItems)},
	} {
		if err := table.Append(row); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(table.Render())
}

func init() {
	rootCommand.AddCommand(statsCommand)
}

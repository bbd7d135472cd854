// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Sunlink Authors
//
// Sunlink - external control client for robot controllers
//
// A CLI tool for starting, stopping and monitoring the default application
// of a robot controller over its UDP external control interface.

package main

import (
	"os"

	"github.com/lbrlab/sunlink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(2)
	}
}

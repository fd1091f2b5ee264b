// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Poolstat - Pentair RS-485 Pool Bus Monitor and Bridge

package main

import (
	"os"

	"github.com/Thermoquad/poolstat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

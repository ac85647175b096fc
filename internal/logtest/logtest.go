// Package logtest initialises the shared logger for package tests.
package logtest

import (
	"fmt"
	"os"

	"github.com/bitmark-inc/logger"
)

const logCategory = "testing"

// Setup starts file-only logging in a fresh temporary directory and returns
// a function that stops logging and removes the directory.
func Setup() func() {
	dir, err := os.MkdirTemp("", "flow4d-log-")
	if err != nil {
		panic(fmt.Sprintf("log directory creation failed: %s", err))
	}

	logging := logger.Configuration{
		Directory: dir,
		File:      fmt.Sprintf("%s.log", logCategory),
		Size:      1048576,
		Count:     10,
		Console:   false,
		Levels: map[string]string{
			logger.DefaultTag: "critical",
		},
	}

	if err := logger.Initialise(logging); err != nil {
		panic(fmt.Sprintf("logger initialization failed: %s", err))
	}

	return func() {
		logger.Finalise()
		if err := os.RemoveAll(dir); err != nil {
			fmt.Println("remove dir with error: ", err)
		}
	}
}

// Run is a TestMain body: it wraps m.Run with Setup and its teardown.
func Run(m interface{ Run() int }) int {
	teardown := Setup()
	defer teardown()
	return m.Run()
}

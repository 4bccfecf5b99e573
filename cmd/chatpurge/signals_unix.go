//go:build !windows

package main

import (
	"os"
	"syscall"
)

var toggleSignals = []os.Signal{syscall.SIGUSR1}

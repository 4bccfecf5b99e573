//go:build windows

package main

import "os"

var toggleSignals []os.Signal

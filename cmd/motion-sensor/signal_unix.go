//go:build unix

package main

import (
	"errors"
	"os"
	"syscall"
)

// recoverSignal asks a running daemon to clear the web password.
var recoverSignal os.Signal = syscall.SIGUSR1

func processAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

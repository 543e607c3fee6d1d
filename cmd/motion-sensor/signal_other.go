//go:build !unix

package main

import "os"

// recoverSignal is unavailable; -clear-password always edits the store.
var recoverSignal os.Signal

func processAlive(int) bool { return false }

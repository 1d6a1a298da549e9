//go:build !unix

package main

// manualTrigger is unavailable without SIGUSR1.
func manualTrigger() (<-chan struct{}, func()) {
	return nil, func() {}
}

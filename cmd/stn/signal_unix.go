//go:build unix

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// manualTrigger turns SIGUSR1 into a request for an immediate notification.
func manualTrigger() (<-chan struct{}, func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGUSR1)

	out := make(chan struct{})
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-sigs:
				select {
				case out <- struct{}{}:
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()

	return out, func() {
		signal.Stop(sigs)
		close(done)
	}
}

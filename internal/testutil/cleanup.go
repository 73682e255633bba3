// Package testutil starts throwaway database containers for integration
// tests. Containers are shared by all tests of a package binary and are
// terminated by TerminateContainers, normally called from TestMain.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/testcontainers/testcontainers-go"
)

var (
	cleanupMu  sync.Mutex
	containers []testcontainers.Container
)

func registerCleanup(c testcontainers.Container) {
	cleanupMu.Lock()
	defer cleanupMu.Unlock()
	containers = append(containers, c)
}

// TerminateContainers stops every container started by this package.
func TerminateContainers() {
	cleanupMu.Lock()
	defer cleanupMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	for _, c := range containers {
		_ = testcontainers.TerminateContainer(c, testcontainers.StopContext(ctx))
	}
	containers = nil
}

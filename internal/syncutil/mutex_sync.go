//go:build !deadlock

// Package syncutil provides the mutex that guards a scope connection.
// Plain sync primitives are used by default; build with -tags=deadlock to
// swap in github.com/sasha-s/go-deadlock and catch lock-order mistakes
// around the multi-command frame reads.
package syncutil

import "sync"

// Mutex wraps sync.Mutex. Build with -tags=deadlock for deadlock detection.
//
//nolint:gocritic // embedding exposes Lock/Unlock directly
type Mutex struct {
	sync.Mutex
}

// RWMutex wraps sync.RWMutex. Build with -tags=deadlock for deadlock detection.
//
//nolint:gocritic // embedding exposes the RWMutex method set directly
type RWMutex struct {
	sync.RWMutex
}

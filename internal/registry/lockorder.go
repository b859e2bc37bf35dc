//go:build debug

package registry

import (
	"bytes"
	"fmt"
	"runtime"
	"sync"
)

// lockLevel enumerates the registry's three mutexes in the order the
// package comment on registry.go requires: active before allKnown before
// columnSizes. Acquiring a lower-numbered lock while already holding a
// higher-numbered one is the inversion spec §9 asks debug builds to catch.
type lockLevel int

const (
	lockLevelActive lockLevel = iota + 1
	lockLevelAllKnown
	lockLevelSizes
)

func (l lockLevel) String() string {
	switch l {
	case lockLevelActive:
		return "activeMu"
	case lockLevelAllKnown:
		return "allKnownMu"
	case lockLevelSizes:
		return "sizesMu"
	default:
		return "unknown"
	}
}

var (
	lockOrderMu sync.Mutex
	lockOrderBy = map[int64][]lockLevel{}
)

// goroutineID parses the numeric id out of runtime.Stack's header line.
// It exists only to key the per-goroutine held-lock stack below; debug
// builds pay this cost deliberately, release builds never link this file.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	b = b[:bytes.IndexByte(b, ' ')]
	var id int64
	fmt.Sscanf(string(b), "%d", &id)
	return id
}

// assertLockOrder records that the calling goroutine is about to acquire
// the lock at level, panicking if it already holds a higher-numbered one.
func assertLockOrder(level lockLevel) {
	gid := goroutineID()
	lockOrderMu.Lock()
	defer lockOrderMu.Unlock()
	stack := lockOrderBy[gid]
	if len(stack) > 0 && stack[len(stack)-1] > level {
		panic(fmt.Sprintf("registry: lock order violation: acquiring %s while holding %s",
			level, stack[len(stack)-1]))
	}
	lockOrderBy[gid] = append(stack, level)
}

// releaseLockOrder pops the most recently acquired level off the calling
// goroutine's held-lock stack; it must be called in the Unlock path that
// mirrors the assertLockOrder call, in LIFO order.
func releaseLockOrder(level lockLevel) {
	gid := goroutineID()
	lockOrderMu.Lock()
	defer lockOrderMu.Unlock()
	stack := lockOrderBy[gid]
	if len(stack) == 0 {
		return
	}
	last := stack[len(stack)-1]
	if last != level {
		panic(fmt.Sprintf("registry: lock order release mismatch: releasing %s but %s was acquired last",
			level, last))
	}
	stack = stack[:len(stack)-1]
	if len(stack) == 0 {
		delete(lockOrderBy, gid)
	} else {
		lockOrderBy[gid] = stack
	}
}

//go:build !debug

package registry

// assertLockOrder and releaseLockOrder are no-ops outside debug builds;
// see lockorder.go for the checked implementation.
func assertLockOrder(lockLevel) {}

func releaseLockOrder(lockLevel) {}

type lockLevel int

const (
	lockLevelActive lockLevel = iota + 1
	lockLevelAllKnown
	lockLevelSizes
)

// Package platform holds process-level helpers that sit outside the
// hexagon: currently the single-instance lock.
package platform

import (
	"errors"
	"fmt"
	"hash/fnv"
	"net"
)

// ErrAlreadyRunning indicates another process holds the lock for the same
// settings store.
var ErrAlreadyRunning = errors.New("another stopwatch instance is using this settings store")

// Port range the lock is hashed into.
const (
	minLockPort = 20000
	maxLockPort = 39999
)

// InstanceLock keeps one process per settings store. Two stopwatches saving
// to the same store at shutdown would overwrite each other's timers.
type InstanceLock struct {
	listener net.Listener
	address  string
}

// AcquireInstanceLock binds a loopback port derived from appName and scope.
// scope is normally the settings location, so instances pointed at different
// stores may run side by side.
func AcquireInstanceLock(appName, scope string) (*InstanceLock, error) {
	address := fmt.Sprintf("127.0.0.1:%d", lockPort(appName+"\x00"+scope))
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w (%s): %w", ErrAlreadyRunning, address, err)
	}
	return &InstanceLock{listener: listener, address: address}, nil
}

// Release frees the lock. Releasing a nil lock is a no-op.
func (l *InstanceLock) Release() error {
	if l == nil || l.listener == nil {
		return nil
	}
	err := l.listener.Close()
	l.listener = nil
	return err
}

// Address returns the bound loopback address.
func (l *InstanceLock) Address() string {
	if l == nil {
		return ""
	}
	return l.address
}

func lockPort(key string) int {
	hash := fnv.New32a()
	_, _ = hash.Write([]byte(key))
	rangeSize := maxLockPort - minLockPort + 1
	return minLockPort + int(hash.Sum32()%uint32(rangeSize))
}

package data

import (
	"sync"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
)

// UsedSpace tracks the bytes used by the stores of a node against its
// maximum capacity.
type UsedSpace struct {
	lock      sync.Mutex
	used      uint64
	max       uint64
	threshold float64
}

// NewUsedSpace creates a tracker for max bytes. The node is considered to be
// getting full once used/max reaches threshold.
func NewUsedSpace(max uint64, threshold float64) *UsedSpace {
	return &UsedSpace{max: max, threshold: threshold}
}

// Increase reserves n bytes. It fails with NotEnoughSpace, reserving
// nothing, if that would exceed the capacity.
func (u *UsedSpace) Increase(n uint64) error {
	u.lock.Lock()
	defer u.lock.Unlock()

	if u.used+n > u.max {
		return common.NewError(common.NotEnoughSpace, "%d bytes requested, %d of %d used", n, u.used, u.max)
	}
	u.used += n
	return nil
}

func (u *UsedSpace) add(n uint64) {
	u.lock.Lock()
	defer u.lock.Unlock()
	u.used += n
}

// Decrease releases n bytes.
func (u *UsedSpace) Decrease(n uint64) {
	u.lock.Lock()
	defer u.lock.Unlock()

	if n > u.used {
		n = u.used
	}
	u.used -= n
}

// Used ...
func (u *UsedSpace) Used() uint64 {
	u.lock.Lock()
	defer u.lock.Unlock()
	return u.used
}

// Max ...
func (u *UsedSpace) Max() uint64 {
	return u.max
}

// Ratio returns used/max.
func (u *UsedSpace) Ratio() float64 {
	u.lock.Lock()
	defer u.lock.Unlock()

	if u.max == 0 {
		return 1
	}
	return float64(u.used) / float64(u.max)
}

// IsGettingFull reports whether the used ratio reached the threshold.
func (u *UsedSpace) IsGettingFull() bool {
	return u.Ratio() >= u.threshold
}

package governor

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/lordpython/videoforge/common"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.TotalCPUCores = 4
	cfg.TotalMemoryMB = 8192
	cfg.TotalDiskMB = 10000
	return cfg
}

func TestAllocateAndDeallocate(t *testing.T) {
	a := assert.New(t)

	g := New(testConfig(), nil)
	sessionID := uuid.New()

	id, err := g.Allocate(sessionID, 1.5, 1024, 500, common.EPriority.Normal())
	a.NoError(err)

	avail := g.Availability()
	a.Equal(2.5, avail.AvailableCPUCores)
	a.Equal(int64(7168), avail.AvailableMemoryMB)

	a.NoError(g.Deallocate(id))
	avail = g.Availability()
	a.Equal(4.0, avail.AvailableCPUCores)
}

func TestAllocateFailsAtomicallyOnPartialExhaustion(t *testing.T) {
	a := assert.New(t)

	g := New(testConfig(), nil)

	ok, _ := g.CanAllocate(1, 100000, 1)
	a.False(ok)

	_, err := g.Allocate(uuid.New(), 1, 100000, 1, common.EPriority.Normal())
	a.Error(err)
	a.Equal(common.EErrorKind.ResourceExhausted(), common.KindOf(err))

	avail := g.Availability()
	a.Equal(4.0, avail.AvailableCPUCores)
}

func TestDeallocateUnknownReturnsNotFound(t *testing.T) {
	a := assert.New(t)

	g := New(testConfig(), nil)
	err := g.Deallocate(uuid.New())
	a.Error(err)
	a.Equal(common.EErrorKind.NotFound(), common.KindOf(err))
}

func TestAlertDedupAndAllBelowWarning(t *testing.T) {
	a := assert.New(t)

	g := New(testConfig(), nil)
	a.True(g.AllBelowWarning())
	a.False(g.AnyCritical())

	g.evaluateThresholds(Usage{CPUPercent: 99, MemPercent: 10, DiskPercent: 10})
	a.True(g.AnyCritical())
	a.False(g.AllBelowWarning())

	g.evaluateThresholds(Usage{CPUPercent: 10, MemPercent: 10, DiskPercent: 10})
	a.True(g.AllBelowWarning())
}

// Package clock implements the master color-clock counter that every
// other chip in the system is driven from. The CPU runs at one third
// of the color-clock rate; everything else queries this counter
// read-only and only the scheduler is permitted to advance it.
package clock

// CpuClockSlowdown is the number of master color clocks per CPU cycle.
const CpuClockSlowdown = 3

// Clock is a monotonically increasing count of master color clocks.
type Clock struct {
	master uint64
}

// New returns a Clock reset to zero.
func New() *Clock {
	return &Clock{}
}

// Master returns the current master color clock count.
func (c *Clock) Master() uint64 {
	return c.master
}

// CPUCycles returns the number of complete CPU cycles that have elapsed.
func (c *Clock) CPUCycles() uint64 {
	return c.master / CpuClockSlowdown
}

// Phase returns this clock's position (0,1,2) within the current CPU cycle triple.
func (c *Clock) Phase() uint64 {
	return c.master % CpuClockSlowdown
}

// Advance moves the clock forward by n master color clocks.
func (c *Clock) Advance(n uint64) {
	c.master += n
}

// Tick advances the clock by a single master color clock and reports
// whether this tick also completes a CPU cycle (i.e. phase wrapped to 0).
func (c *Clock) Tick() (cpuCycleBoundary bool) {
	c.master++
	return c.master%CpuClockSlowdown == 0
}

// Reset rewinds the clock to zero.
func (c *Clock) Reset() {
	c.master = 0
}

// Set forces the clock to an arbitrary master color clock count, used only
// when restoring a save-state snapshot.
func (c *Clock) Set(master uint64) {
	c.master = master
}

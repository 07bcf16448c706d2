package savestate

import (
	"testing"

	"github.com/go-test/deep"

	"github.com/jmchacon/atari2600core/atari2600"
	"github.com/jmchacon/atari2600core/cartridge"
	"github.com/jmchacon/atari2600core/io"
	"github.com/jmchacon/atari2600core/tia"
)

type fixedSwitch bool

func (f fixedSwitch) Input() bool { return bool(f) }

func newTestVCS(t *testing.T) *atari2600.VCS {
	t.Helper()
	rom := make([]uint8, 2048)
	for i := range rom {
		rom[i] = 0xEA // NOP
	}
	rom[0x7FC] = 0x00 // reset vector low: $1000
	rom[0x7FD] = 0x10 // reset vector high

	vcs, err := atari2600.Init(&atari2600.VCSDef{
		Mode:       tia.NTSC,
		Difficulty: [2]io.PortIn1{fixedSwitch(false), fixedSwitch(false)},
		ColorBW:    fixedSwitch(true),
		GameSelect: fixedSwitch(false),
		Reset:      fixedSwitch(false),
		CartTag:    cartridge.TagSingleBank,
		Rom:        rom,
	})
	if err != nil {
		t.Fatalf("atari2600.Init: %v", err)
	}
	return vcs
}

func TestRoundTripReproducesIdenticalContinuation(t *testing.T) {
	vcs := newTestVCS(t)

	for i := 0; i < 50; i++ {
		if err := vcs.Step(); err != nil {
			t.Fatalf("warmup Step() %d: %v", i, err)
		}
	}

	snap := Save(vcs)

	const continuation = 200
	for i := 0; i < continuation; i++ {
		if err := vcs.Step(); err != nil {
			t.Fatalf("reference continuation Step() %d: %v", i, err)
		}
	}
	want := vcs.State()

	if err := Restore(vcs, snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	for i := 0; i < continuation; i++ {
		if err := vcs.Step(); err != nil {
			t.Fatalf("post-restore continuation Step() %d: %v", i, err)
		}
	}
	got := vcs.State()

	if diff := deep.Equal(got, want); diff != nil {
		t.Errorf("state after restore+replay diverged from the reference continuation: %v", diff)
	}
}

func TestRestoreRejectsIncompatibleCartridgeShape(t *testing.T) {
	vcs := newTestVCS(t)
	if err := vcs.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	snap := Save(vcs)
	snap.state.HasCartBank = !snap.state.HasCartBank // corrupt the snapshot's shape.

	if err := Restore(vcs, snap); err == nil {
		t.Error("expected CorruptStateError for a cartridge-shape mismatch, got nil")
	}
}

func TestStoreSlots(t *testing.T) {
	vcs := newTestVCS(t)
	store := NewStore()

	if err := store.Restore("missing", vcs); err == nil {
		t.Error("expected an error restoring an empty slot")
	}

	store.Save("checkpoint", vcs)
	before := vcs.State()
	for i := 0; i < 10; i++ {
		if err := vcs.Step(); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}
	if err := store.Restore("checkpoint", vcs); err != nil {
		t.Fatalf("store.Restore: %v", err)
	}
	if diff := deep.Equal(vcs.State(), before); diff != nil {
		t.Errorf("restored state diverged from the checkpoint: %v", diff)
	}
}

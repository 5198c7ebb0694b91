package engine

import (
	"errors"
	"math"
	"testing"

	"github.com/37-AN/43v3rm1x/internal/audio"
)

// silentTrack builds a deterministic fixture track of the given length.
// Silence analyzes to the default 120 BPM, which the loop tests rely on.
func silentTrack(seconds int) *audio.Track {
	samples := make([]int16, seconds*audio.SampleRate*audio.Channels)
	return audio.TrackFromSamples("fixture", "test", samples)
}

func TestDeckEmptyRejectsTransport(t *testing.T) {
	d := NewDeck(DeckA)

	if err := d.Play(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Play on empty deck: err = %v, want ErrInvalidState", err)
	}
	if err := d.Pause(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Pause on empty deck: err = %v, want ErrInvalidState", err)
	}
	if err := d.Seek(5); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Seek on empty deck: err = %v, want ErrInvalidState", err)
	}
	if err := d.SetHotCue(0, 1, ""); !errors.Is(err, ErrInvalidState) {
		t.Errorf("SetHotCue on empty deck: err = %v, want ErrInvalidState", err)
	}
	if err := d.SetLoop(1, 2); !errors.Is(err, ErrInvalidState) {
		t.Errorf("SetLoop on empty deck: err = %v, want ErrInvalidState", err)
	}
}

func TestDeckTransportStateMachine(t *testing.T) {
	d := NewDeck(DeckA)
	d.Load(silentTrack(20))

	if d.Snapshot().State != StatePaused {
		t.Fatalf("state after load = %v, want paused", d.Snapshot().State)
	}
	if err := d.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if err := d.Play(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("double Play: err = %v, want ErrInvalidState", err)
	}
	if err := d.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := d.Pause(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("double Pause: err = %v, want ErrInvalidState", err)
	}
}

func TestDeckPauseKeepsPosition(t *testing.T) {
	d := NewDeck(DeckA)
	d.Load(silentTrack(20))
	if err := d.Play(); err != nil {
		t.Fatal(err)
	}
	// 25 frames = 0.5s of playback.
	for i := 0; i < 25; i++ {
		if d.nextFrame() == nil {
			t.Fatal("playing deck produced nil frame")
		}
	}
	if err := d.Pause(); err != nil {
		t.Fatal(err)
	}
	if got := d.Position(); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("position after 25 frames = %v, want 0.5", got)
	}
	// Resume picks up from the stored playhead.
	if err := d.Play(); err != nil {
		t.Fatal(err)
	}
	if got := d.Position(); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("position after resume = %v, want 0.5", got)
	}
}

func TestDeckSeekClamps(t *testing.T) {
	d := NewDeck(DeckA)
	d.Load(silentTrack(20))

	if err := d.Seek(-5); err != nil {
		t.Fatal(err)
	}
	if got := d.Position(); got != 0 {
		t.Errorf("Seek(-5) position = %v, want 0", got)
	}
	if err := d.Seek(9999); err != nil {
		t.Fatal(err)
	}
	if got := d.Position(); got != 20 {
		t.Errorf("Seek(9999) position = %v, want 20", got)
	}
}

func TestDeckEndOfTrackParks(t *testing.T) {
	d := NewDeck(DeckA)
	d.Load(silentTrack(1))
	if err := d.Seek(0.99); err != nil {
		t.Fatal(err)
	}
	if err := d.Play(); err != nil {
		t.Fatal(err)
	}
	// 0.01s remain: the first frame covers it, zero-padded, then the deck
	// parks paused at the end.
	frame := d.nextFrame()
	if frame == nil {
		t.Fatal("final frame was nil")
	}
	if len(frame) != audio.FrameSamples {
		t.Fatalf("final frame length = %d, want %d", len(frame), audio.FrameSamples)
	}
	snap := d.Snapshot()
	if snap.State != StatePaused {
		t.Errorf("state at end of track = %v, want paused", snap.State)
	}
	if snap.Position != 1 {
		t.Errorf("position at end of track = %v, want 1", snap.Position)
	}
	if d.nextFrame() != nil {
		t.Error("parked deck still producing frames")
	}
}

func TestDeckHotCues(t *testing.T) {
	d := NewDeck(DeckA)
	d.Load(silentTrack(20))

	if err := d.SetHotCue(-1, 1, ""); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("slot -1: err = %v, want ErrInvalidRange", err)
	}
	if err := d.SetHotCue(HotCueSlots, 1, ""); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("slot %d: err = %v, want ErrInvalidRange", HotCueSlots, err)
	}

	if err := d.SetHotCue(3, 5, "drop"); err != nil {
		t.Fatal(err)
	}
	// Overwrite is silent.
	if err := d.SetHotCue(3, 7, "second drop"); err != nil {
		t.Fatal(err)
	}
	snap := d.Snapshot()
	if len(snap.Cues) != 1 || snap.Cues[0].Position != 7 {
		t.Fatalf("cues after overwrite = %+v, want one cue at 7", snap.Cues)
	}

	if err := d.JumpToCue(3); err != nil {
		t.Fatal(err)
	}
	if got := d.Position(); got != 7 {
		t.Errorf("position after jump = %v, want 7", got)
	}

	// Jump to an empty slot leaves the playhead alone.
	if err := d.JumpToCue(5); err != nil {
		t.Fatal(err)
	}
	if got := d.Position(); got != 7 {
		t.Errorf("position after empty jump = %v, want 7", got)
	}

	if err := d.DeleteCue(3); err != nil {
		t.Fatal(err)
	}
	if err := d.DeleteCue(3); err != nil {
		t.Errorf("deleting empty slot: %v, want nil", err)
	}
	if len(d.Snapshot().Cues) != 0 {
		t.Error("cue survived delete")
	}

	// Cue position clamps to track bounds.
	if err := d.SetHotCue(0, 500, ""); err != nil {
		t.Fatal(err)
	}
	if got := d.Snapshot().Cues[0].Position; got != 20 {
		t.Errorf("out-of-bounds cue clamped to %v, want 20", got)
	}
}

func TestDeckLoadClearsCuesAndLoop(t *testing.T) {
	d := NewDeck(DeckA)
	d.Load(silentTrack(20))
	if err := d.SetHotCue(0, 5, ""); err != nil {
		t.Fatal(err)
	}
	if err := d.SetLoop(1, 3); err != nil {
		t.Fatal(err)
	}

	d.Load(silentTrack(10))
	snap := d.Snapshot()
	if len(snap.Cues) != 0 || snap.Loop != nil {
		t.Errorf("cues/loop survived reload: %+v", snap)
	}
	if snap.Position != 0 {
		t.Errorf("position after reload = %v, want 0", snap.Position)
	}
}

func TestDeckLoopValidation(t *testing.T) {
	d := NewDeck(DeckA)
	d.Load(silentTrack(20))

	if err := d.SetLoop(5, 5); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("zero-length loop: err = %v, want ErrInvalidRange", err)
	}
	if err := d.SetLoop(7, 3); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("inverted loop: err = %v, want ErrInvalidRange", err)
	}
	if err := d.SetLoop(-1, 3); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("negative start: err = %v, want ErrInvalidRange", err)
	}
	if err := d.SetLoop(5, 25); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("loop past end: err = %v, want ErrInvalidRange", err)
	}

	// A rejected set leaves the prior loop untouched.
	if err := d.SetLoop(2, 4); err != nil {
		t.Fatal(err)
	}
	if err := d.SetLoop(7, 3); !errors.Is(err, ErrInvalidRange) {
		t.Fatal("inverted loop accepted")
	}
	loop := d.Snapshot().Loop
	if loop == nil || loop.Start != 2 || loop.End != 4 || !loop.Active {
		t.Errorf("prior loop lost after rejected set: %+v", loop)
	}
}

func TestDeckLoopLengthBeats(t *testing.T) {
	d := NewDeck(DeckA)
	d.Load(silentTrack(20)) // silence -> 120 BPM, one beat = 0.5s

	if err := d.SetLoop(10, 15); err != nil {
		t.Fatal(err)
	}
	loop := d.Snapshot().Loop
	if loop.LengthBeats != 10 {
		t.Errorf("5s loop at 120 BPM = %v beats, want 10", loop.LengthBeats)
	}
}

func TestDeckToggleLoop(t *testing.T) {
	d := NewDeck(DeckA)
	d.Load(silentTrack(20))

	// No loop: toggling is a no-op.
	if err := d.ToggleLoop(); err != nil {
		t.Fatal(err)
	}
	if d.Snapshot().Loop != nil {
		t.Fatal("toggle created a loop")
	}

	if err := d.SetLoop(2, 4); err != nil {
		t.Fatal(err)
	}
	if err := d.ToggleLoop(); err != nil {
		t.Fatal(err)
	}
	loop := d.Snapshot().Loop
	if loop == nil || loop.Active {
		t.Errorf("loop after toggle = %+v, want inactive with bounds kept", loop)
	}
	if err := d.ToggleLoop(); err != nil {
		t.Fatal(err)
	}
	if !d.Snapshot().Loop.Active {
		t.Error("loop not reactivated by second toggle")
	}
}

func TestDeckLoopWrapsMidFrame(t *testing.T) {
	d := NewDeck(DeckA)
	d.Load(silentTrack(20))
	if err := d.SetLoop(10, 15); err != nil {
		t.Fatal(err)
	}
	if err := d.Seek(14.1); err != nil {
		t.Fatal(err)
	}
	if err := d.Play(); err != nil {
		t.Fatal(err)
	}

	// 0.9s to the loop end = 45 frames. One more frame crosses the
	// boundary and wraps to the loop start mid-frame.
	for i := 0; i < 50; i++ {
		if d.nextFrame() == nil {
			t.Fatalf("frame %d was nil", i)
		}
	}
	pos := d.Position()
	if pos < 10 || pos >= 11 {
		t.Errorf("position after wrap = %v, want just past 10", pos)
	}
}

func TestDeckLoopWrapIsSampleExact(t *testing.T) {
	d := NewDeck(DeckA)
	d.Load(silentTrack(20))
	// A 480-sample loop wraps 2 times inside every frame. Thousands of
	// wraps must not drift the playhead out of the region.
	if err := d.SetLoop(10, 10.01); err != nil {
		t.Fatal(err)
	}
	if err := d.Seek(10); err != nil {
		t.Fatal(err)
	}
	if err := d.Play(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 500; i++ {
		if d.nextFrame() == nil {
			t.Fatalf("frame %d was nil", i)
		}
		pos := d.Position()
		if pos < 10 || pos >= 10.01 {
			t.Fatalf("frame %d: position %v escaped loop [10, 10.01)", i, pos)
		}
	}
}

func TestDeckInactiveLoopDoesNotWrap(t *testing.T) {
	d := NewDeck(DeckA)
	d.Load(silentTrack(20))
	if err := d.SetLoop(10, 11); err != nil {
		t.Fatal(err)
	}
	if err := d.ToggleLoop(); err != nil { // deactivate
		t.Fatal(err)
	}
	if err := d.Seek(10.9); err != nil {
		t.Fatal(err)
	}
	if err := d.Play(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		d.nextFrame()
	}
	if pos := d.Position(); pos < 11 {
		t.Errorf("position with inactive loop = %v, want past 11", pos)
	}
}

func TestDeckBeatLoop(t *testing.T) {
	d := NewDeck(DeckA)
	d.Load(silentTrack(20)) // 120 BPM
	if err := d.Seek(4); err != nil {
		t.Fatal(err)
	}

	if err := d.BeatLoop(0); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("BeatLoop(0): err = %v, want ErrInvalidRange", err)
	}
	if err := d.BeatLoop(4); err != nil {
		t.Fatal(err)
	}
	loop := d.Snapshot().Loop
	if loop.Start != 4 || loop.End != 6 || loop.LengthBeats != 4 {
		t.Errorf("BeatLoop(4) = %+v, want [4, 6] / 4 beats", loop)
	}

	// A beat loop that would run past the end of the track is rejected.
	if err := d.Seek(19.9); err != nil {
		t.Fatal(err)
	}
	if err := d.BeatLoop(4); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("overflowing BeatLoop: err = %v, want ErrInvalidRange", err)
	}
}

func TestDeckHalveAndDoubleLoop(t *testing.T) {
	d := NewDeck(DeckA)
	d.Load(silentTrack(20))

	// No loop: both are no-ops.
	if err := d.HalveLoop(); err != nil {
		t.Fatal(err)
	}
	if err := d.DoubleLoop(); err != nil {
		t.Fatal(err)
	}

	if err := d.SetLoop(4, 8); err != nil {
		t.Fatal(err)
	}
	if err := d.HalveLoop(); err != nil {
		t.Fatal(err)
	}
	loop := d.Snapshot().Loop
	if loop.Start != 4 || loop.End != 6 {
		t.Errorf("halved loop = [%v, %v], want [4, 6]", loop.Start, loop.End)
	}
	if err := d.DoubleLoop(); err != nil {
		t.Fatal(err)
	}
	loop = d.Snapshot().Loop
	if loop.Start != 4 || loop.End != 8 {
		t.Errorf("doubled loop = [%v, %v], want [4, 8]", loop.Start, loop.End)
	}

	// Doubling past the track end is rejected, loop kept.
	if err := d.SetLoop(4, 16); err != nil {
		t.Fatal(err)
	}
	if err := d.DoubleLoop(); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("overflowing DoubleLoop: err = %v, want ErrInvalidRange", err)
	}
	loop = d.Snapshot().Loop
	if loop.Start != 4 || loop.End != 16 {
		t.Errorf("loop after rejected double = [%v, %v], want [4, 16]", loop.Start, loop.End)
	}
}

func TestDeckVolumeAndEQClamp(t *testing.T) {
	d := NewDeck(DeckA)
	d.Load(silentTrack(5))

	d.SetVolume(150)
	if got := d.Snapshot().Volume; got != 100 {
		t.Errorf("volume clamped to %v, want 100", got)
	}
	d.SetVolume(-10)
	if got := d.Snapshot().Volume; got != 0 {
		t.Errorf("volume clamped to %v, want 0", got)
	}

	d.SetEQ(EQSettings{High: 40, Mid: -40, Low: 3})
	eq := d.Snapshot().EQ
	if eq.High != audio.EQGainRangeDB || eq.Mid != -audio.EQGainRangeDB || eq.Low != 3 {
		t.Errorf("EQ clamped to %+v, want (+12, -12, 3)", eq)
	}
}

func TestDeckPausedProducesNoFrames(t *testing.T) {
	d := NewDeck(DeckA)
	if d.nextFrame() != nil {
		t.Error("empty deck produced a frame")
	}
	d.Load(silentTrack(5))
	if d.nextFrame() != nil {
		t.Error("paused deck produced a frame")
	}
}

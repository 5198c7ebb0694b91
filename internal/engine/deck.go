package engine

import (
	"fmt"
	"sync"

	"github.com/37-AN/43v3rm1x/internal/audio"
	"github.com/37-AN/43v3rm1x/internal/logger"
)

// DeckID names one of the two playback lanes.
type DeckID string

const (
	DeckA DeckID = "A"
	DeckB DeckID = "B"
)

// HotCueSlots is the fixed addressable cue space per deck.
const HotCueSlots = 8

// State is the deck transport state. Loaded and Paused are the same state:
// a track is present and the playhead is parked.
type State string

const (
	StateEmpty   State = "empty"
	StatePaused  State = "paused"
	StatePlaying State = "playing"
)

// HotCue is a saved playback position in one of the 8 slots.
type HotCue struct {
	Slot     int     `json:"slot"`
	Position float64 `json:"position"`
	Label    string  `json:"label,omitempty"`
}

// Loop is a bounded region the deck repeats while active. End is always
// strictly greater than Start; a deck with no valid region has a nil loop.
type Loop struct {
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Active      bool    `json:"active"`
	LengthBeats float64 `json:"lengthBeats"`
}

// EQSettings is the per-deck 3-band gain set in dB.
type EQSettings struct {
	High float64 `json:"high"`
	Mid  float64 `json:"mid"`
	Low  float64 `json:"low"`
}

// Deck is one playback lane: a loaded track, its live chain, transport
// position, hot cues and loop. All operations are serialized by the deck
// mutex, so commands from concurrent callers see a total order.
type Deck struct {
	id DeckID

	mu       sync.Mutex
	track    *audio.Track
	state    State
	position float64 // stored playhead when not playing, seconds
	chain    *chain
	volume   float64 // 0-100
	eq       EQSettings
	cues     [HotCueSlots]*HotCue
	loop     *Loop
	analyzer *audio.SpectrumAnalyzer
}

// NewDeck creates an empty deck.
func NewDeck(id DeckID) *Deck {
	return &Deck{
		id:       id,
		state:    StateEmpty,
		volume:   100,
		analyzer: audio.NewSpectrumAnalyzer(),
	}
}

// ID returns the deck name.
func (d *Deck) ID() DeckID { return d.id }

// Analyzer exposes the per-deck spectrum tap.
func (d *Deck) Analyzer() *audio.SpectrumAnalyzer { return d.analyzer }

// Load replaces the deck's track. Valid from any state: a playing chain is
// stopped first (never left dangling), cues and loop referring to the old
// track are dropped, and the deck parks at position 0.
func (d *Deck) Load(t *audio.Track) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.teardownChain()
	d.track = t
	d.state = StatePaused
	d.position = 0
	d.cues = [HotCueSlots]*HotCue{}
	d.loop = nil

	logger.Info("deck loaded",
		logger.String("deck", string(d.id)),
		logger.String("track", t.Name),
		logger.Float64("duration", t.Duration),
		logger.Float64("bpm", t.BPM),
		logger.String("key", t.Key),
	)
}

// Play starts playback from the stored position by building a fresh live
// chain (chains are single-use).
func (d *Deck) Play() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.track == nil {
		return fmt.Errorf("%w: deck %s is empty", ErrInvalidState, d.id)
	}
	if d.state == StatePlaying {
		return fmt.Errorf("%w: deck %s already playing", ErrInvalidState, d.id)
	}
	return d.startChain(d.position)
}

// Pause stops the live chain, invalidating it, and records the playhead.
func (d *Deck) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StatePlaying {
		return fmt.Errorf("%w: deck %s not playing", ErrInvalidState, d.id)
	}
	d.position = d.chain.positionSeconds()
	d.teardownChain()
	d.state = StatePaused
	return nil
}

// Seek moves the playhead, clamped to [0, duration]. While playing the
// chain is rebuilt at the new offset so playback audibly restarts there.
func (d *Deck) Seek(seconds float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.track == nil {
		return fmt.Errorf("%w: deck %s is empty", ErrInvalidState, d.id)
	}
	seconds = clamp(seconds, 0, d.track.Duration)
	if d.state == StatePlaying {
		d.teardownChain()
		return d.startChain(seconds)
	}
	d.position = seconds
	return nil
}

// SetVolume sets the deck fader (0-100), applied on the next frame.
func (d *Deck) SetVolume(volume float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.volume = clamp(volume, 0, 100)
	if d.chain != nil {
		d.chain.gain = d.volume / 100
	}
}

// SetEQ sets the 3-band gains in dB, clamped to +/-12.
func (d *Deck) SetEQ(eq EQSettings) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.eq = EQSettings{
		High: clamp(eq.High, -audio.EQGainRangeDB, audio.EQGainRangeDB),
		Mid:  clamp(eq.Mid, -audio.EQGainRangeDB, audio.EQGainRangeDB),
		Low:  clamp(eq.Low, -audio.EQGainRangeDB, audio.EQGainRangeDB),
	}
	if d.chain != nil {
		d.chain.eq.SetGains(d.eq.High, d.eq.Mid, d.eq.Low)
	}
}

// SetHotCue stores a cue marker, overwriting any cue in the slot. The
// position is clamped to track bounds.
func (d *Deck) SetHotCue(slot int, position float64, label string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := checkSlot(slot); err != nil {
		return err
	}
	if d.track == nil {
		return fmt.Errorf("%w: deck %s is empty", ErrInvalidState, d.id)
	}
	d.cues[slot] = &HotCue{
		Slot:     slot,
		Position: clamp(position, 0, d.track.Duration),
		Label:    label,
	}
	return nil
}

// JumpToCue seeks to the cue in the slot. An empty slot is a no-op.
func (d *Deck) JumpToCue(slot int) error {
	d.mu.Lock()
	cue := (*HotCue)(nil)
	if err := checkSlot(slot); err != nil {
		d.mu.Unlock()
		return err
	}
	cue = d.cues[slot]
	d.mu.Unlock()

	if cue == nil {
		return nil
	}
	return d.Seek(cue.Position)
}

// DeleteCue clears the slot. Deleting an empty slot is a no-op.
func (d *Deck) DeleteCue(slot int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := checkSlot(slot); err != nil {
		return err
	}
	d.cues[slot] = nil
	return nil
}

// SetLoop defines the loop region and activates it. End must be greater
// than start and both must lie within the track; a rejected set leaves any
// prior loop intact.
func (d *Deck) SetLoop(start, end float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setLoopLocked(start, end)
}

func (d *Deck) setLoopLocked(start, end float64) error {
	if d.track == nil {
		return fmt.Errorf("%w: deck %s is empty", ErrInvalidState, d.id)
	}
	if end <= start {
		return fmt.Errorf("%w: loop end %.3f <= start %.3f", ErrInvalidRange, end, start)
	}
	if start < 0 || end > d.track.Duration {
		return fmt.Errorf("%w: loop [%.3f, %.3f] outside track bounds", ErrInvalidRange, start, end)
	}
	d.loop = &Loop{
		Start:       start,
		End:         end,
		Active:      true,
		LengthBeats: (end - start) / (60 / d.track.BPM),
	}
	return nil
}

// ToggleLoop flips the loop's active flag without losing its bounds. A
// deck with no loop is a no-op.
func (d *Deck) ToggleLoop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.loop == nil {
		return nil
	}
	d.loop.Active = !d.loop.Active
	return nil
}

// BeatLoop sets a loop of exactly beats beats starting at the playhead.
func (d *Deck) BeatLoop(beats float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.track == nil {
		return fmt.Errorf("%w: deck %s is empty", ErrInvalidState, d.id)
	}
	if beats <= 0 {
		return fmt.Errorf("%w: beat loop length %.2f", ErrInvalidRange, beats)
	}
	start := d.positionLocked()
	return d.setLoopLocked(start, start+beats*(60/d.track.BPM))
}

// HalveLoop shrinks the loop to half its length from the same start.
func (d *Deck) HalveLoop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.loop == nil {
		return nil
	}
	return d.setLoopLocked(d.loop.Start, d.loop.Start+(d.loop.End-d.loop.Start)/2)
}

// DoubleLoop extends the loop to twice its length from the same start.
func (d *Deck) DoubleLoop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.loop == nil {
		return nil
	}
	return d.setLoopLocked(d.loop.Start, d.loop.Start+(d.loop.End-d.loop.Start)*2)
}

// ClearLoop removes the loop entirely.
func (d *Deck) ClearLoop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loop = nil
}

// Position reads the current playhead in seconds.
func (d *Deck) Position() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.positionLocked()
}

func (d *Deck) positionLocked() float64 {
	if d.state == StatePlaying && d.chain != nil {
		return d.chain.positionSeconds()
	}
	return d.position
}

// startChain builds and starts a fresh live chain. Caller holds the lock.
func (d *Deck) startChain(offset float64) error {
	c := newChain(d.track, d.analyzer)
	c.gain = d.volume / 100
	c.eq.SetGains(d.eq.High, d.eq.Mid, d.eq.Low)
	if err := c.play(offset); err != nil {
		return err
	}
	d.chain = c
	d.state = StatePlaying
	return nil
}

// teardownChain stops and drops the live chain. Caller holds the lock.
func (d *Deck) teardownChain() {
	if d.chain != nil {
		d.chain.stop()
		d.chain = nil
	}
}

// nextFrame produces the deck's next 20ms frame for the mix bus, or nil
// when the deck is not playing. Loop wrap happens inside the frame, so the
// playhead can never be observed at or past an active loop's end.
func (d *Deck) nextFrame() []int16 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StatePlaying || d.chain == nil {
		return nil
	}

	var region *loopRegion
	if d.loop != nil && d.loop.Active {
		region = &loopRegion{
			start: int(d.loop.Start * audio.SampleRate),
			end:   int(d.loop.End * audio.SampleRate),
		}
	}

	frame, live := d.chain.nextFrame(region)
	if !live {
		// End of track: park at the end.
		d.position = d.track.Duration
		d.chain = nil
		d.state = StatePaused
	}
	return frame
}

// Snapshot captures the deck state for the presentation layer. The
// waveform envelope is served separately because of its size.
type Snapshot struct {
	Deck     DeckID     `json:"deck"`
	State    State      `json:"state"`
	Position float64    `json:"position"`
	Volume   float64    `json:"volume"`
	EQ       EQSettings `json:"eq"`
	Cues     []HotCue   `json:"cues"`
	Loop     *Loop      `json:"loop,omitempty"`

	TrackID  string  `json:"trackId,omitempty"`
	Name     string  `json:"name,omitempty"`
	Artist   string  `json:"artist,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	BPM      float64 `json:"bpm,omitempty"`
	Key      string  `json:"key,omitempty"`
}

// Snapshot returns a copy of the deck's observable state.
func (d *Deck) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	snap := Snapshot{
		Deck:     d.id,
		State:    d.state,
		Position: d.positionLocked(),
		Volume:   d.volume,
		EQ:       d.eq,
	}
	for _, cue := range d.cues {
		if cue != nil {
			snap.Cues = append(snap.Cues, *cue)
		}
	}
	if d.loop != nil {
		loop := *d.loop
		snap.Loop = &loop
	}
	if d.track != nil {
		snap.TrackID = d.track.ID
		snap.Name = d.track.Name
		snap.Artist = d.track.Artist
		snap.Duration = d.track.Duration
		snap.BPM = d.track.BPM
		snap.Key = d.track.Key
	}
	return snap
}

// Track returns the loaded track, nil when empty.
func (d *Deck) Track() *audio.Track {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.track
}

func checkSlot(slot int) error {
	if slot < 0 || slot >= HotCueSlots {
		return fmt.Errorf("%w: cue slot %d outside 0-%d", ErrInvalidRange, slot, HotCueSlots-1)
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Package engine is the realtime core: two decks, the mix bus and the
// 20ms frame pump that drives them.
package engine

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/37-AN/43v3rm1x/internal/audio"
	"github.com/37-AN/43v3rm1x/internal/logger"
)

// Config holds the engine's tunables.
type Config struct {
	FFmpegPath     string
	AnalyzerBins   int
	CrossfaderInit float64
}

// Engine owns the decks and mixer and publishes master frames on a fixed
// 20ms cadence. It stays silent until EnsureActive has run once.
type Engine struct {
	cfg   Config
	deckA *Deck
	deckB *Deck
	mixer *Mixer

	frames chan []int16

	mu     sync.Mutex
	active bool
}

// New creates an engine with empty decks and the crossfader at the
// configured position.
func New(cfg Config) *Engine {
	return &Engine{
		cfg:    cfg,
		deckA:  NewDeck(DeckA),
		deckB:  NewDeck(DeckB),
		mixer:  NewMixer(cfg.CrossfaderInit),
		frames: make(chan []int16, 100),
	}
}

// EnsureActive switches the engine from silent to producing. The first
// call probes for FFmpeg; later calls are no-ops. Mirrors the audio
// platform resume gesture: callers invoke it on any user action.
func (e *Engine) EnsureActive() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active {
		return nil
	}
	if _, err := exec.LookPath(e.cfg.FFmpegPath); err != nil {
		return fmt.Errorf("%w: ffmpeg not found at %q", ErrPlatformUnavailable, e.cfg.FFmpegPath)
	}
	e.active = true
	logger.Info("engine activated", logger.String("ffmpeg", e.cfg.FFmpegPath))
	return nil
}

// Active reports whether the engine has been activated.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Frames is the master-mix output: one frame every 20ms while Run is
// live.
func (e *Engine) Frames() <-chan []int16 { return e.frames }

// Mixer returns the session mix bus.
func (e *Engine) Mixer() *Mixer { return e.mixer }

// Deck resolves a deck by ID.
func (e *Engine) Deck(id DeckID) (*Deck, error) {
	switch id {
	case DeckA:
		return e.deckA, nil
	case DeckB:
		return e.deckB, nil
	default:
		return nil, fmt.Errorf("%w: deck %q", ErrInvalidRange, id)
	}
}

// Load decodes raw audio bytes and loads the resulting track onto a deck.
// A decode failure leaves the deck untouched.
func (e *Engine) Load(id DeckID, name, artist string, data []byte) (*audio.Track, error) {
	deck, err := e.Deck(id)
	if err != nil {
		return nil, err
	}
	t, err := audio.NewTrack(e.cfg.FFmpegPath, name, artist, data)
	if err != nil {
		return nil, err
	}
	deck.Load(t)
	return t, nil
}

// LoadTrack loads an already decoded track onto a deck.
func (e *Engine) LoadTrack(id DeckID, t *audio.Track) error {
	deck, err := e.Deck(id)
	if err != nil {
		return err
	}
	deck.Load(t)
	return nil
}

// Run drives the frame pump until ctx is cancelled. Each tick pulls one
// frame from each deck, mixes them and publishes the master frame. The
// pump keeps real time even if a tick's work runs long, because the
// ticker fires on the wall clock.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(audio.FrameDuration)
	defer ticker.Stop()

	logger.Info("engine pump started",
		logger.Int("frameMs", int(audio.FrameDuration/time.Millisecond)),
		logger.Int("sampleRate", audio.SampleRate),
	)

	for {
		select {
		case <-ctx.Done():
			logger.Info("engine pump stopped")
			return
		case <-ticker.C:
			if !e.Active() {
				continue
			}
			master := e.mixer.Mix(e.deckA.nextFrame(), e.deckB.nextFrame())
			select {
			case e.frames <- master:
			default:
				// downstream stalled, drop rather than fall behind real time
			}
		}
	}
}

// EngineSnapshot is the full console state for the presentation layer.
type EngineSnapshot struct {
	Active bool          `json:"active"`
	DeckA  Snapshot      `json:"deckA"`
	DeckB  Snapshot      `json:"deckB"`
	Mixer  MixerSnapshot `json:"mixer"`
}

// Snapshot captures both decks and the mixer in one read.
func (e *Engine) Snapshot() EngineSnapshot {
	return EngineSnapshot{
		Active: e.Active(),
		DeckA:  e.deckA.Snapshot(),
		DeckB:  e.deckB.Snapshot(),
		Mixer:  e.mixer.Snapshot(),
	}
}

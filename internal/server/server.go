// Package server exposes the console over HTTP: a JSON control API, a
// WebSocket state feed and the monitor streams.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/37-AN/43v3rm1x/internal/audio"
	"github.com/37-AN/43v3rm1x/internal/engine"
	"github.com/37-AN/43v3rm1x/internal/library"
	"github.com/37-AN/43v3rm1x/internal/logger"
	"github.com/37-AN/43v3rm1x/internal/stream"
)

// maxUploadBytes bounds direct track uploads.
const maxUploadBytes = 200 << 20

// Server wires the engine, library and streams into one HTTP surface.
type Server struct {
	engine      *engine.Engine
	library     *library.Library
	recorder    *engine.Recorder
	analyzerBin int
	router      *mux.Router
}

// New builds the router. httpStream and rtcStream serve the monitor
// endpoints; either may be nil to disable that transport.
func New(e *engine.Engine, lib *library.Library, rec *engine.Recorder,
	httpStream *stream.HTTPHandler, rtcStream *stream.WebRTCHandler, analyzerBins int) *Server {

	s := &Server{
		engine:      e,
		library:     lib,
		recorder:    rec,
		analyzerBin: analyzerBins,
		router:      mux.NewRouter(),
	}

	r := s.router
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/activate", s.handleActivate).Methods(http.MethodPost)
	r.HandleFunc("/api/library", s.handleLibrary).Methods(http.MethodGet)

	r.HandleFunc("/api/decks/{deck}", s.handleDeckStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/decks/{deck}/waveform", s.handleWaveform).Methods(http.MethodGet)
	r.HandleFunc("/api/decks/{deck}/load", s.handleLoad).Methods(http.MethodPost)
	r.HandleFunc("/api/decks/{deck}/upload", s.handleUpload).Methods(http.MethodPost)
	r.HandleFunc("/api/decks/{deck}/play", s.handlePlay).Methods(http.MethodPost)
	r.HandleFunc("/api/decks/{deck}/pause", s.handlePause).Methods(http.MethodPost)
	r.HandleFunc("/api/decks/{deck}/seek", s.handleSeek).Methods(http.MethodPost)
	r.HandleFunc("/api/decks/{deck}/volume", s.handleDeckVolume).Methods(http.MethodPost)
	r.HandleFunc("/api/decks/{deck}/eq", s.handleEQ).Methods(http.MethodPost)

	r.HandleFunc("/api/decks/{deck}/cues/{slot}", s.handleSetCue).Methods(http.MethodPut)
	r.HandleFunc("/api/decks/{deck}/cues/{slot}", s.handleDeleteCue).Methods(http.MethodDelete)
	r.HandleFunc("/api/decks/{deck}/cues/{slot}/jump", s.handleJumpCue).Methods(http.MethodPost)

	r.HandleFunc("/api/decks/{deck}/loop", s.handleSetLoop).Methods(http.MethodPost)
	r.HandleFunc("/api/decks/{deck}/loop", s.handleClearLoop).Methods(http.MethodDelete)
	r.HandleFunc("/api/decks/{deck}/loop/toggle", s.handleToggleLoop).Methods(http.MethodPost)
	r.HandleFunc("/api/decks/{deck}/loop/beat", s.handleBeatLoop).Methods(http.MethodPost)
	r.HandleFunc("/api/decks/{deck}/loop/halve", s.handleHalveLoop).Methods(http.MethodPost)
	r.HandleFunc("/api/decks/{deck}/loop/double", s.handleDoubleLoop).Methods(http.MethodPost)

	r.HandleFunc("/api/mixer/crossfader", s.handleCrossfader).Methods(http.MethodPost)
	r.HandleFunc("/api/mixer/volume", s.handleMasterVolume).Methods(http.MethodPost)
	r.HandleFunc("/api/mixer/headphone", s.handleHeadphone).Methods(http.MethodPost)
	r.HandleFunc("/api/mixer/cue", s.handleCueSource).Methods(http.MethodPost)

	r.HandleFunc("/api/record/start", s.handleRecordStart).Methods(http.MethodPost)
	r.HandleFunc("/api/record/stop", s.handleRecordStop).Methods(http.MethodPost)

	r.HandleFunc("/ws", s.handleWS)
	if httpStream != nil {
		r.Handle("/stream", httpStream).Methods(http.MethodGet)
	}
	if rtcStream != nil {
		r.Handle("/offer", rtcStream)
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// writeError maps the engine error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var decodeErr *audio.DecodeError
	switch {
	case errors.As(err, &decodeErr):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrInvalidRange):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrPlatformUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body", engine.ErrInvalidRange)
	}
	return nil
}

// deck resolves the {deck} path variable.
func (s *Server) deck(r *http.Request) (*engine.Deck, error) {
	return s.engine.Deck(engine.DeckID(mux.Vars(r)["deck"]))
}

func cueSlot(r *http.Request) (int, error) {
	slot, err := strconv.Atoi(mux.Vars(r)["slot"])
	if err != nil {
		return 0, fmt.Errorf("%w: cue slot %q", engine.ErrInvalidRange, mux.Vars(r)["slot"])
	}
	return slot, nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.EnsureActive(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": true})
}

func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.library.Entries())
}

func (s *Server) handleDeckStatus(w http.ResponseWriter, r *http.Request) {
	deck, err := s.deck(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deck.Snapshot())
}

func (s *Server) handleWaveform(w http.ResponseWriter, r *http.Request) {
	deck, err := s.deck(r)
	if err != nil {
		writeError(w, err)
		return
	}
	t := deck.Track()
	if t == nil {
		writeError(w, fmt.Errorf("%w: deck is empty", engine.ErrInvalidState))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"trackId":  t.ID,
		"waveform": t.Waveform,
	})
}

// handleLoad loads a library track onto a deck by ID.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.EnsureActive(); err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		TrackID string `json:"trackId"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	entry, data, err := s.library.ReadFile(req.TrackID)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", engine.ErrInvalidRange, err))
		return
	}
	t, err := s.engine.Load(engine.DeckID(mux.Vars(r)["deck"]), entry.Name, entry.Artist, data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trackInfo(t))
}

// handleUpload decodes an uploaded file straight onto a deck.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.EnsureActive(); err != nil {
		writeError(w, err)
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, fmt.Errorf("%w: multipart form: %v", engine.ErrInvalidRange, err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, fmt.Errorf("%w: missing file field", engine.ErrInvalidRange))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeError(w, err)
		return
	}
	artist, name := library.ParseFilename(header.Filename)
	t, err := s.engine.Load(engine.DeckID(mux.Vars(r)["deck"]), name, artist, data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trackInfo(t))
}

func trackInfo(t *audio.Track) map[string]any {
	return map[string]any{
		"id":       t.ID,
		"name":     t.Name,
		"artist":   t.Artist,
		"duration": t.Duration,
		"bpm":      t.BPM,
		"key":      t.Key,
	}
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	s.deckOp(w, r, func(d *engine.Deck) error {
		if err := s.engine.EnsureActive(); err != nil {
			return err
		}
		return d.Play()
	})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.deckOp(w, r, (*engine.Deck).Pause)
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Position float64 `json:"position"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.deckOp(w, r, func(d *engine.Deck) error { return d.Seek(req.Position) })
}

func (s *Server) handleDeckVolume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume float64 `json:"volume"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.deckOp(w, r, func(d *engine.Deck) error {
		d.SetVolume(req.Volume)
		return nil
	})
}

func (s *Server) handleEQ(w http.ResponseWriter, r *http.Request) {
	var req engine.EQSettings
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.deckOp(w, r, func(d *engine.Deck) error {
		d.SetEQ(req)
		return nil
	})
}

func (s *Server) handleSetCue(w http.ResponseWriter, r *http.Request) {
	slot, err := cueSlot(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Position *float64 `json:"position"`
		Label    string   `json:"label"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.deckOp(w, r, func(d *engine.Deck) error {
		pos := d.Position()
		if req.Position != nil {
			pos = *req.Position
		}
		return d.SetHotCue(slot, pos, req.Label)
	})
}

func (s *Server) handleDeleteCue(w http.ResponseWriter, r *http.Request) {
	slot, err := cueSlot(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s.deckOp(w, r, func(d *engine.Deck) error { return d.DeleteCue(slot) })
}

func (s *Server) handleJumpCue(w http.ResponseWriter, r *http.Request) {
	slot, err := cueSlot(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s.deckOp(w, r, func(d *engine.Deck) error { return d.JumpToCue(slot) })
}

func (s *Server) handleSetLoop(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.deckOp(w, r, func(d *engine.Deck) error { return d.SetLoop(req.Start, req.End) })
}

func (s *Server) handleClearLoop(w http.ResponseWriter, r *http.Request) {
	s.deckOp(w, r, func(d *engine.Deck) error {
		d.ClearLoop()
		return nil
	})
}

func (s *Server) handleToggleLoop(w http.ResponseWriter, r *http.Request) {
	s.deckOp(w, r, (*engine.Deck).ToggleLoop)
}

func (s *Server) handleBeatLoop(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Beats float64 `json:"beats"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.deckOp(w, r, func(d *engine.Deck) error { return d.BeatLoop(req.Beats) })
}

func (s *Server) handleHalveLoop(w http.ResponseWriter, r *http.Request) {
	s.deckOp(w, r, (*engine.Deck).HalveLoop)
}

func (s *Server) handleDoubleLoop(w http.ResponseWriter, r *http.Request) {
	s.deckOp(w, r, (*engine.Deck).DoubleLoop)
}

// deckOp runs op against the deck in the path and replies with the deck
// snapshot on success.
func (s *Server) deckOp(w http.ResponseWriter, r *http.Request, op func(*engine.Deck) error) {
	deck, err := s.deck(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := op(deck); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deck.Snapshot())
}

func (s *Server) handleCrossfader(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Position float64 `json:"position"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.engine.Mixer().SetCrossfader(req.Position)
	writeJSON(w, http.StatusOK, s.engine.Mixer().Snapshot())
}

func (s *Server) handleMasterVolume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume float64 `json:"volume"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.engine.Mixer().SetMasterVolume(req.Volume)
	writeJSON(w, http.StatusOK, s.engine.Mixer().Snapshot())
}

func (s *Server) handleHeadphone(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume float64 `json:"volume"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.engine.Mixer().SetHeadphoneVolume(req.Volume)
	writeJSON(w, http.StatusOK, s.engine.Mixer().Snapshot())
}

func (s *Server) handleCueSource(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source string `json:"source"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.engine.Mixer().SetCueSource(engine.CueSource(req.Source)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Mixer().Snapshot())
}

func (s *Server) handleRecordStart(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.EnsureActive(); err != nil {
		writeError(w, err)
		return
	}
	if err := s.recorder.Start(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"recording": true})
}

// handleRecordStop finishes the capture and returns the encoded file as
// an attachment.
func (s *Server) handleRecordStop(w http.ResponseWriter, r *http.Request) {
	rec, err := s.recorder.Stop()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", rec.MIME)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(rec.Data)))
	if _, err := w.Write(rec.Data); err != nil {
		logger.Warn("record download", logger.ErrorField(err))
	}
}

package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/37-AN/43v3rm1x/internal/engine"
	"github.com/37-AN/43v3rm1x/internal/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsUpdate is one state push to a connected client.
type wsUpdate struct {
	Engine    engine.EngineSnapshot `json:"engine"`
	SpectrumA []byte                `json:"spectrumA"`
	SpectrumB []byte                `json:"spectrumB"`
	SpectrumM []byte                `json:"spectrumMaster"`
}

// handleWS pushes console state and spectrum frames to the client every
// 50ms until it disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("ws upgrade", logger.ErrorField(err))
		return
	}
	defer conn.Close()

	logger.Info("ws client connected", logger.String("remote", r.RemoteAddr))
	defer logger.Info("ws client disconnected", logger.String("remote", r.RemoteAddr))

	// Reader goroutine: only needed to notice the close frame.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	deckA, _ := s.engine.Deck(engine.DeckA)
	deckB, _ := s.engine.Deck(engine.DeckB)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			update := wsUpdate{
				Engine:    s.engine.Snapshot(),
				SpectrumA: deckA.Analyzer().Bins(s.analyzerBin),
				SpectrumB: deckB.Analyzer().Bins(s.analyzerBin),
				SpectrumM: s.engine.Mixer().Analyzer().Bins(s.analyzerBin),
			}
			conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
			if err := conn.WriteJSON(update); err != nil {
				return
			}
		}
	}
}

package api

import (
	"encoding/hex"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/ava-labs/fedimint/utils/logging"
)

// TransactionAccepted is published once per transaction that finishes
// phaseApplyTransactions with StateAccepted.
type TransactionAccepted struct {
	TxHash string `json:"tx_hash"`
}

// TransactionRejected is published once per transaction that finishes
// phaseApplyTransactions with StateError.
type TransactionRejected struct {
	TxHash  string `json:"tx_hash"`
	Message string `json:"message"`
}

// OutputFinalized is published once finalize_signatures combines enough
// partial signature shares to produce a coin output's finished signature.
type OutputFinalized struct {
	TxHash string `json:"tx_hash"`
	Index  uint32 `json:"index"`
}

// EventFeed fans transaction-accepted, transaction-rejected and
// output-finalized notifications out to every connected websocket client.
// Best-effort: a client whose write fails is dropped. Writes are made
// without a deadline, so a slow client delays each publication.
type EventFeed struct {
	upgrader websocket.Upgrader
	log      *logging.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func NewEventFeed(log *logging.Logger) *EventFeed {
	return &EventFeed{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log:     log.With("event-feed"),
		clients: make(map[*websocket.Conn]struct{}),
	}
}

func (f *EventFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Warn("websocket upgrade failed: %v", err)
		return
	}

	f.mu.Lock()
	f.clients[conn] = struct{}{}
	f.mu.Unlock()

	go f.drainUntilClosed(conn)
}

// drainUntilClosed reads (and discards) client frames only so the
// connection's close/error is observed promptly; this feed is
// publish-only.
func (f *EventFeed) drainUntilClosed(conn *websocket.Conn) {
	defer f.remove(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *EventFeed) remove(conn *websocket.Conn) {
	f.mu.Lock()
	delete(f.clients, conn)
	f.mu.Unlock()
	conn.Close()
}

// PublishAccepted notifies every connected client that txHash was accepted.
func (f *EventFeed) PublishAccepted(txHash [32]byte) {
	f.broadcast(TransactionAccepted{TxHash: hex.EncodeToString(txHash[:])})
}

// PublishRejected notifies every connected client that txHash was rejected.
func (f *EventFeed) PublishRejected(txHash [32]byte, reason string) {
	f.broadcast(TransactionRejected{TxHash: hex.EncodeToString(txHash[:]), Message: reason})
}

// PublishFinalized notifies every connected client that one output of
// txHash received its finished signature.
func (f *EventFeed) PublishFinalized(txHash [32]byte, index uint32) {
	f.broadcast(OutputFinalized{TxHash: hex.EncodeToString(txHash[:]), Index: index})
}

func (f *EventFeed) broadcast(evt interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for conn := range f.clients {
		if err := conn.WriteJSON(evt); err != nil {
			f.log.Debug("dropping event feed client: %v", err)
			go f.remove(conn)
		}
	}
}

// OnTransactionAccepted implements engine.Observer.
func (f *EventFeed) OnTransactionAccepted(txHash [32]byte) { f.PublishAccepted(txHash) }

// OnTransactionRejected implements engine.Observer.
func (f *EventFeed) OnTransactionRejected(txHash [32]byte, reason string) {
	f.PublishRejected(txHash, reason)
}

// OnOutputFinalized implements engine.Observer.
func (f *EventFeed) OnOutputFinalized(txHash [32]byte, index uint32) {
	f.PublishFinalized(txHash, index)
}

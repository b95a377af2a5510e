package mtp

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"go.uber.org/atomic"

	"github.com/gorilla/websocket"
	"github.com/paulbellamy/ratecounter"
	"golang.org/x/sync/errgroup"
)

// EventBridge fans device events out to websocket clients, so a UI can
// react to object and store changes without polling the device.

type eventPayload struct {
	Code   uint16   `json:"code"`
	Name   string   `json:"name"`
	Params []uint32 `json:"params"`
	TID    uint32   `json:"transactionId"`
}

type bridgeStats struct {
	EventsPerSec int64 `json:"eventsPerSec"`
	Total        int64 `json:"total"`
	Clients      int   `json:"clients"`
}

type EventBridge struct {
	upgrader websocket.Upgrader

	clients    map[*websocket.Conn]bool
	clientLock sync.Mutex

	evRate *ratecounter.RateCounter
	total  *atomic.Int64

	ch chan Event

	eg  *errgroup.Group
	ctx context.Context
	log *logrus.Logger
}

// NewEventBridge subscribes to the session's events and prepares the
// hub. Run must be called to start broadcasting.
func NewEventBridge(s *Session, log *logrus.Logger, ctx context.Context) *EventBridge {
	eg, egCtx := errgroup.WithContext(ctx)

	b := &EventBridge{
		clients: map[*websocket.Conn]bool{},
		evRate:  ratecounter.NewRateCounter(time.Second),
		total:   atomic.NewInt64(0),
		ch:      make(chan Event, 64),
		eg:      eg,
		ctx:     egCtx,
		log:     log,
	}

	s.OnEvent(func(ev Event) {
		// Never stall the listener on a slow hub.
		select {
		case b.ch <- ev:
		default:
			b.log.WithField("prefix", "event").Warning("bridge queue full, dropping event")
		}
	})
	return b
}

// Run broadcasts until the context is cancelled.
func (b *EventBridge) Run() error {
	b.eg.Go(b.broadcastLoop)
	return b.eg.Wait()
}

func (b *EventBridge) broadcastLoop() error {
	for {
		select {
		case <-b.ctx.Done():
			return nil
		case ev := <-b.ch:
			b.evRate.Incr(1)
			b.total.Inc()
			b.broadcast(ev)
		}
	}
}

func (b *EventBridge) broadcast(ev Event) {
	msg, err := json.Marshal(eventPayload{
		Code:   ev.Code,
		Name:   getName(EC_names, int(ev.Code)),
		Params: ev.Params,
		TID:    ev.TransactionID,
	})
	if err != nil {
		b.log.WithField("prefix", "event").Errorf("failed to marshal event: %s", err)
		return
	}

	b.clientLock.Lock()
	defer b.clientLock.Unlock()
	for c := range b.clients {
		if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.Close()
			delete(b.clients, c)
		}
	}
}

// HandleClient upgrades the request and keeps the connection in the
// broadcast set until the peer goes away.
func (b *EventBridge) HandleClient(w http.ResponseWriter, r *http.Request) {
	c, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.WithField("prefix", "event").Errorf("failed to upgrade: %s", err)
		return
	}
	defer c.Close()

	b.clientLock.Lock()
	b.clients[c] = true
	b.clientLock.Unlock()

	defer func() {
		b.clientLock.Lock()
		delete(b.clients, c)
		b.clientLock.Unlock()
	}()

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

// HandleStats reports the event rate and client count.
func (b *EventBridge) HandleStats(w http.ResponseWriter, r *http.Request) {
	b.clientLock.Lock()
	clients := len(b.clients)
	b.clientLock.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(bridgeStats{
		EventsPerSec: b.evRate.Rate(),
		Total:        b.total.Load(),
		Clients:      clients,
	})
}

// Package hub implements the Broadcast Hub (spec §4.I): per-mint
// subscription rooms fed by a single Cache Store subscription to the
// price-update channel, fanning snapshots out to every connection
// subscribed to that mint. Grounded on the room/membership model of
// backendService/websocket's HubManager and models.Hub, generalised
// from a single global Broadcast channel to one room per mint and from
// socket.io-style channel names to mint-keyed rooms.
package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"

	"tokenpulse/internal/apperr"
	"tokenpulse/internal/cache"
	"tokenpulse/internal/domain"
	"tokenpulse/internal/observability"
)

// sendBuffer bounds how many undelivered messages queue on a slow
// connection before it is dropped, mirroring Client.Send's buffered
// channel in models/websocket.go.
const sendBuffer = 32

// Validator is the subset of the Token Validator the Hub needs to gate
// subscribe.
type Validator interface {
	Validate(ctx context.Context, mint string) error
}

// PricingProvider is the subset of the Pricing Engine the Hub needs to
// seed a fresh subscriber with the most recent snapshot, computing one
// on the spot if none exists yet.
type PricingProvider interface {
	CurrentOf(ctx context.Context, mint string) (*domain.PriceSnapshot, error)
	UpdateMint(ctx context.Context, mint string) error
}

// SchedulerEnroller is the subset of the Scheduler the Hub needs to
// start tracking a mint the first time anyone subscribes to it.
type SchedulerEnroller interface {
	Enrol(ctx context.Context, mint string) error
}

// Connection is a transport-agnostic subscriber. internal/ws wraps a
// gorilla websocket connection in one of these; anything else that can
// drain a channel of outbound frames and carry an identity works too.
type Connection struct {
	ID   string
	Send chan []byte

	mu   sync.Mutex
	mint map[string]bool
}

// NewConnection builds a Connection ready to register with a Hub.
func NewConnection(id string) *Connection {
	return &Connection{
		ID:   id,
		Send: make(chan []byte, sendBuffer),
		mint: make(map[string]bool),
	}
}

func (c *Connection) subscribedTo(mint string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mint[mint]
}

func (c *Connection) addMint(mint string) {
	c.mu.Lock()
	c.mint[mint] = true
	c.mu.Unlock()
}

func (c *Connection) removeMint(mint string) {
	c.mu.Lock()
	delete(c.mint, mint)
	c.mu.Unlock()
}

func (c *Connection) mints() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.mint))
	for m := range c.mint {
		out = append(out, m)
	}
	return out
}

// Hub owns every mint room and the single fan-out subscription to the
// price-update channel (§4.I).
type Hub struct {
	validator Validator
	pricing   PricingProvider
	scheduler SchedulerEnroller
	cache     cache.Store
	log       *logrus.Entry

	mu    sync.RWMutex
	rooms map[string]map[*Connection]bool
}

// New builds a Hub. Call Run to start fanning out price updates.
func New(validator Validator, pricing PricingProvider, scheduler SchedulerEnroller, cacheStore cache.Store, log *logrus.Entry) *Hub {
	return &Hub{
		validator: validator,
		pricing:   pricing,
		scheduler: scheduler,
		cache:     cacheStore,
		log:       log,
		rooms:     make(map[string]map[*Connection]bool),
	}
}

// Run subscribes to the Cache Store's price-update channel and fans
// each snapshot out to the room for its mint until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	unsubscribe, err := h.cache.Subscribe(ctx, cache.PriceUpdateChannel, h.onPriceUpdate)
	if err != nil {
		return apperr.UpstreamUnavailable("cache", err)
	}
	go func() {
		<-ctx.Done()
		unsubscribe()
	}()
	return nil
}

func (h *Hub) onPriceUpdate(payload []byte) {
	var snapshot domain.PriceSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		h.log.WithError(err).Warn("hub: malformed price update payload")
		return
	}
	h.broadcast(snapshot.Mint, priceUpdateEvent{Event: "price_update", Data: snapshot})
}

// Subscribe implements §4.I subscribe: validates mint, enrols the
// Scheduler on first interest, joins the room, and pushes the most
// recent (or freshly computed) snapshot plus a success acknowledgement.
func (h *Hub) Subscribe(ctx context.Context, conn *Connection, mint string) {
	if err := h.validator.Validate(ctx, mint); err != nil {
		h.send(conn, subscriptionErrorEvent{
			Event:   "subscription_error",
			Mint:    mint,
			Message: err.Error(),
			Code:    codeInvalidTokenMint,
		})
		observability.RecordSubscriptionEvent("subscription_error")
		return
	}

	if conn.subscribedTo(mint) {
		h.send(conn, subscriptionStatusEvent{Event: "subscription_status", Mint: mint, Status: statusAlreadySubscribed})
		observability.RecordSubscriptionEvent("subscription_status")
		return
	}

	wasEmpty := h.join(conn, mint)
	conn.addMint(mint)

	if wasEmpty {
		if err := h.scheduler.Enrol(ctx, mint); err != nil {
			h.log.WithError(err).WithField("mint", mint).Warn("hub: scheduler enrol failed")
		}
	}

	snapshot, err := h.pricing.CurrentOf(ctx, mint)
	if err != nil {
		h.log.WithError(err).WithField("mint", mint).Warn("hub: currentOf failed for new subscriber")
	}
	if snapshot == nil {
		if uerr := h.pricing.UpdateMint(ctx, mint); uerr != nil {
			h.log.WithError(uerr).WithField("mint", mint).Warn("hub: initial updateMint failed for new subscriber")
		} else if s, serr := h.pricing.CurrentOf(ctx, mint); serr == nil {
			snapshot = s
		}
	}
	if snapshot != nil {
		h.send(conn, priceUpdateEvent{Event: "price_update", Data: *snapshot})
	}

	h.send(conn, subscriptionSuccessEvent{
		Event:              "subscription_success",
		Mint:               mint,
		TotalSubscriptions: len(conn.mints()),
	})
	observability.RecordSubscriptionEvent("subscription_success")
}

// Unsubscribe implements §4.I unsubscribe: leaves the room without
// cancelling the Scheduler's job, which keeps running per the
// at-most-once-enrolment, never-cancel-on-last-unsubscribe invariant.
func (h *Hub) Unsubscribe(conn *Connection, mint string) {
	if !conn.subscribedTo(mint) {
		return
	}
	h.leave(conn, mint)
	conn.removeMint(mint)
	h.send(conn, unsubscriptionSuccessEvent{
		Event:              "unsubscription_success",
		Mint:               mint,
		TotalSubscriptions: len(conn.mints()),
	})
	observability.RecordSubscriptionEvent("unsubscription_success")
}

// Disconnect removes conn from every room it was part of. Called once
// per connection when its transport closes.
func (h *Hub) Disconnect(conn *Connection) {
	for _, mint := range conn.mints() {
		h.leave(conn, mint)
	}
	observability.DefaultMetrics.ActiveConnections.Dec()
}

// SendError emits a malformed-input notice without touching any
// subscription state (§4.K: malformed messages don't disrupt other
// subscriptions).
func (h *Hub) SendError(conn *Connection, message string) {
	h.send(conn, errorEvent{Event: "error", Message: message})
}

// Connected emits the initial handshake event a fresh transport sends
// right after upgrade (§4.K).
func (h *Hub) Connected(conn *Connection, message, usage string) {
	h.send(conn, connectedEvent{Event: "connected", SocketID: conn.ID, Message: message, Usage: usage})
	observability.DefaultMetrics.ActiveConnections.Inc()
}

func (h *Hub) join(conn *Connection, mint string) (wasEmpty bool) {
	h.mu.Lock()
	room, ok := h.rooms[mint]
	if !ok {
		room = make(map[*Connection]bool)
		h.rooms[mint] = room
	}
	wasEmpty = len(room) == 0
	room[conn] = true
	roomCount := len(h.rooms)
	h.mu.Unlock()
	observability.DefaultMetrics.ActiveRooms.Set(float64(roomCount))
	return wasEmpty
}

func (h *Hub) leave(conn *Connection, mint string) {
	h.mu.Lock()
	room, ok := h.rooms[mint]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(room, conn)
	if len(room) == 0 {
		delete(h.rooms, mint)
	}
	roomCount := len(h.rooms)
	h.mu.Unlock()
	observability.DefaultMetrics.ActiveRooms.Set(float64(roomCount))
}

func (h *Hub) broadcast(mint string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.mu.RLock()
	room := h.rooms[mint]
	conns := make([]*Connection, 0, len(room))
	for c := range room {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		h.sendRaw(c, body)
	}
}

func (h *Hub) send(conn *Connection, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.sendRaw(conn, body)
}

// sendRaw delivers non-blocking, dropping the frame and disconnecting
// the subscriber if its outbound buffer is full (grounded on
// HubManager.broadcastMessage's fallback-to-unregister behaviour).
func (h *Hub) sendRaw(conn *Connection, body []byte) {
	select {
	case conn.Send <- body:
	default:
		h.log.WithField("connection", conn.ID).Warn("hub: send buffer full, dropping connection")
		h.Disconnect(conn)
		close(conn.Send)
	}
}

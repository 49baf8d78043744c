// Package monitor publishes roam notifications to websocket clients. A
// Broadcaster is a notify.Sink: every notification is encoded once and queued
// to each connected client, and clients that fall behind are disconnected
// rather than slowing the state machine down.
package monitor

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-i2p/logger"
	"github.com/gorilla/websocket"

	"github.com/go-wlan/go-wlan/lib/notify"
	"github.com/go-wlan/go-wlan/lib/roam"
	"github.com/go-wlan/go-wlan/lib/session"
)

var log = logger.GetGoI2PLogger()

const (
	MsgNotification = "notification"
	MsgSnapshot     = "snapshot"

	writeWait = 5 * time.Second
)

// Event is the JSON form of a notification.
type Event struct {
	Time       time.Time `json:"time"`
	Session    string    `json:"session"`
	RoamID     uint32    `json:"roam_id,omitempty"`
	Event      string    `json:"event"`
	Result     string    `json:"result"`
	BSSID      string    `json:"bssid,omitempty"`
	SSID       string    `json:"ssid,omitempty"`
	Reason     string    `json:"reason"`
	ReasonCode uint16    `json:"reason_code,omitempty"`
	Channel    int       `json:"channel,omitempty"`
	KeyID      uint8     `json:"key_id,omitempty"`
}

// EventFrom converts a notification.
func EventFrom(n notify.Notification) Event {
	ev := Event{
		Time:       n.Time,
		Session:    n.Session.String(),
		RoamID:     n.RoamID,
		Event:      n.Event.String(),
		Result:     n.Result.String(),
		SSID:       n.Info.SSID,
		Reason:     n.Info.Reason.String(),
		ReasonCode: n.Info.ReasonCode,
		Channel:    n.Info.Channel,
		KeyID:      n.Info.KeyID,
	}
	if !n.Info.BSSID.IsZero() {
		ev.BSSID = n.Info.BSSID.String()
	}
	return ev
}

// Message is what clients receive.
type Message struct {
	Type     string         `json:"type"`
	Event    *Event         `json:"event,omitempty"`
	Sessions []session.Info `json:"sessions,omitempty"`
	Stats    *roam.Stats    `json:"stats,omitempty"`
}

// Snapshotter reports the current sessions. *roam.Machine implements it.
type Snapshotter interface {
	Snapshot() ([]session.Info, roam.Stats, error)
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "monitor closing"),
		time.Now().Add(writeWait))
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithSendBuffer sets how many messages may queue per client before it is
// dropped.
func WithSendBuffer(n int) Option { return func(b *Broadcaster) { b.buffer = n } }

// WithSnapshotter sends every new client the current sessions, and enables
// periodic snapshots.
func WithSnapshotter(s Snapshotter) Option { return func(b *Broadcaster) { b.snap = s } }

// WithSnapshotInterval re-broadcasts the sessions every d. Zero disables it.
func WithSnapshotInterval(d time.Duration) Option { return func(b *Broadcaster) { b.interval = d } }

// WithCheckOrigin overrides the upgrader's origin check.
func WithCheckOrigin(f func(r *http.Request) bool) Option {
	return func(b *Broadcaster) { b.upgrader.CheckOrigin = f }
}

// Broadcaster fans notifications out to websocket clients.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[*client]struct{}
	closed   bool
	buffer   int
	snap     Snapshotter
	interval time.Duration
	upgrader websocket.Upgrader
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewBroadcaster creates a broadcaster. Close releases its clients.
func NewBroadcaster(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		clients: make(map[*client]struct{}),
		buffer:  64,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.buffer <= 0 {
		b.buffer = 1
	}
	if b.snap != nil && b.interval > 0 {
		b.wg.Add(1)
		go b.snapshotLoop()
	}
	return b
}

// Notify implements notify.Sink.
func (b *Broadcaster) Notify(n notify.Notification) {
	ev := EventFrom(n)
	b.broadcast(Message{Type: MsgNotification, Event: &ev})
}

// ServeHTTP upgrades the request and keeps the client until it goes away.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithFields(logger.Fields{
			"at":     "monitor.Broadcaster.ServeHTTP",
			"remote": r.RemoteAddr,
		}).WithError(err).Warn("upgrade_failed")
		return
	}
	c := b.add(conn)
	if c == nil {
		conn.Close()
		return
	}
	// clients only listen; reading detects the close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	b.remove(c)
}

func (b *Broadcaster) add(conn *websocket.Conn) *client {
	c := &client{conn: conn, send: make(chan []byte, b.buffer)}
	if data, ok := b.snapshot(); ok {
		c.send <- data
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.clients[c] = struct{}{}
	count := len(b.clients)
	b.mu.Unlock()

	go c.writePump()
	log.WithFields(logger.Fields{
		"at":      "monitor.Broadcaster.add",
		"remote":  conn.RemoteAddr().String(),
		"clients": count,
	}).Debug("client_connected")
	return c
}

func (b *Broadcaster) remove(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

// snapshot encodes the current sessions, if a snapshotter is set.
func (b *Broadcaster) snapshot() ([]byte, bool) {
	if b.snap == nil {
		return nil, false
	}
	sessions, stats, err := b.snap.Snapshot()
	if err != nil {
		log.WithError(err).WithField("at", "monitor.Broadcaster.snapshot").Debug("snapshot_unavailable")
		return nil, false
	}
	data, err := json.Marshal(Message{Type: MsgSnapshot, Sessions: sessions, Stats: &stats})
	if err != nil {
		log.WithError(err).WithField("at", "monitor.Broadcaster.snapshot").Error("marshal_failed")
		return nil, false
	}
	return data, true
}

func (b *Broadcaster) snapshotLoop() {
	defer b.wg.Done()
	t := time.NewTicker(b.interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if data, ok := b.snapshot(); ok {
				b.send(data)
			}
		case <-b.stop:
			return
		}
	}
}

func (b *Broadcaster) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.WithError(err).WithField("at", "monitor.Broadcaster.broadcast").Error("marshal_failed")
		return
	}
	b.send(data)
}

func (b *Broadcaster) send(data []byte) {
	var slow []*client
	b.mu.RLock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		log.WithFields(logger.Fields{
			"at":     "monitor.Broadcaster.send",
			"remote": c.conn.RemoteAddr().String(),
		}).Warn("client_too_slow")
		b.remove(c)
	}
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Close disconnects every client and refuses new ones.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for c := range b.clients {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
	close(b.stop)
	b.wg.Wait()
	return nil
}

var _ notify.Sink = (*Broadcaster)(nil)

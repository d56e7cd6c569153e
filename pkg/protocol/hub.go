package protocol

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var (
	// ErrClosed is returned when sending through a closed mailbox or hub.
	ErrClosed = errors.New("mailbox closed")
	// ErrUnknownTab is returned when no mailbox is open for a tab.
	ErrUnknownTab = errors.New("unknown tab")
	// ErrTabBusy is returned by OpenExclusive when the tab already has a mailbox.
	ErrTabBusy = errors.New("tab already open")
)

// Mailbox holds one slot per direction for a single tab.
type Mailbox struct {
	tabID   string
	toPage  chan Message
	toRelay chan Message
	done    chan struct{}
	once    sync.Once
}

func newMailbox(tabID string) *Mailbox {
	return &Mailbox{
		tabID:   tabID,
		toPage:  make(chan Message, 1),
		toRelay: make(chan Message, 1),
		done:    make(chan struct{}),
	}
}

// TabID returns the tab this mailbox belongs to.
func (m *Mailbox) TabID() string { return m.tabID }

// Page returns the channel the page side reads relay messages from.
func (m *Mailbox) Page() <-chan Message { return m.toPage }

// Done is closed when the mailbox is closed.
func (m *Mailbox) Done() <-chan struct{} { return m.done }

// SendToRelay posts a page message, waiting while the slot is occupied.
func (m *Mailbox) SendToRelay(ctx context.Context, msg Message) error {
	msg.TabID = m.tabID
	return m.send(ctx, m.toRelay, msg)
}

// SendToPage posts a relay message, waiting while the slot is occupied.
func (m *Mailbox) SendToPage(ctx context.Context, msg Message) error {
	msg.TabID = m.tabID
	return m.send(ctx, m.toPage, msg)
}

func (m *Mailbox) send(ctx context.Context, ch chan Message, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	select {
	case <-m.done:
		return ErrClosed
	default:
	}
	select {
	case ch <- msg:
		return nil
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Mailbox) close() {
	m.once.Do(func() { close(m.done) })
}

// Hub owns the mailboxes of all connected tabs and fans page messages in
// to a single request stream for the relay.
type Hub struct {
	mu        sync.Mutex
	mailboxes map[string]*Mailbox
	requests  chan Message
	done      chan struct{}
	closeOnce sync.Once
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		mailboxes: make(map[string]*Mailbox),
		requests:  make(chan Message),
		done:      make(chan struct{}),
	}
}

// Open returns the mailbox for tabID, creating it if needed.
func (h *Hub) Open(tabID string) (*Mailbox, error) {
	return h.open(tabID, false)
}

// OpenExclusive creates the mailbox for tabID, failing with ErrTabBusy when
// one is already open. The check and the creation happen under one lock.
func (h *Hub) OpenExclusive(tabID string) (*Mailbox, error) {
	return h.open(tabID, true)
}

func (h *Hub) open(tabID string, exclusive bool) (*Mailbox, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	select {
	case <-h.done:
		return nil, ErrClosed
	default:
	}

	if mb, ok := h.mailboxes[tabID]; ok {
		if exclusive {
			return nil, ErrTabBusy
		}
		return mb, nil
	}
	mb := newMailbox(tabID)
	h.mailboxes[tabID] = mb
	go h.forward(mb)
	return mb, nil
}

// Get returns the open mailbox for tabID.
func (h *Hub) Get(tabID string) (*Mailbox, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	mb, ok := h.mailboxes[tabID]
	return mb, ok
}

// Tabs returns the ids of open mailboxes in sorted order.
func (h *Hub) Tabs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.mailboxes))
	for id := range h.mailboxes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close closes and forgets the mailbox for tabID.
func (h *Hub) Close(tabID string) {
	h.mu.Lock()
	mb, ok := h.mailboxes[tabID]
	delete(h.mailboxes, tabID)
	h.mu.Unlock()
	if ok {
		mb.close()
	}
}

// Shutdown closes every mailbox and stops the request stream.
func (h *Hub) Shutdown() {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		close(h.done)
		for id, mb := range h.mailboxes {
			mb.close()
			delete(h.mailboxes, id)
		}
		h.mu.Unlock()
	})
}

// Requests is the fan-in of every mailbox's page-to-relay slot.
func (h *Hub) Requests() <-chan Message { return h.requests }

// Done is closed by Shutdown.
func (h *Hub) Done() <-chan struct{} { return h.done }

// Deliver sends a relay message to the page side of tabID.
func (h *Hub) Deliver(ctx context.Context, tabID string, msg Message) error {
	mb, ok := h.Get(tabID)
	if !ok {
		return ErrUnknownTab
	}
	return mb.SendToPage(ctx, msg)
}

func (h *Hub) forward(mb *Mailbox) {
	for {
		select {
		case msg := <-mb.toRelay:
			select {
			case h.requests <- msg:
			case <-mb.done:
				return
			case <-h.done:
				return
			}
		case <-mb.done:
			return
		case <-h.done:
			return
		}
	}
}

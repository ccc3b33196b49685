// Package bus is an in-process topic pub/sub used to hand Click readings
// from the sampler to whoever wants them.
//
// Topics are token slices. In subscriptions "+" matches exactly one token
// and "#" (last position only) matches zero or more trailing tokens.
// Retained messages are replayed to later subscribers; publishing a retained
// message with a nil payload clears the slot. Slow subscribers lose their
// oldest queued message rather than blocking the publisher.
package bus

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
)

const (
	wildOne  = "+"
	wildRest = "#"
)

// Topic is a sequence of comparable tokens (usually strings or ints).
type Topic []any

// T builds a topic, panicking on a non-comparable token.
func T(tokens ...any) Topic {
	for _, tok := range tokens {
		if tok == nil || !reflect.TypeOf(tok).Comparable() {
			panic(fmt.Sprintf("bus: token %#v is not comparable", tok))
		}
	}
	return Topic(tokens)
}

// String joins the tokens with '/'.
func (t Topic) String() string {
	var sb strings.Builder
	for i, tok := range t {
		if i > 0 {
			sb.WriteByte('/')
		}
		fmt.Fprint(&sb, tok)
	}
	return sb.String()
}

// Message is one published value.
type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
	ReplyTo  Topic
}

// Subscription is a queue of messages matching a filter.
type Subscription struct {
	filter Topic
	ch     chan *Message
	conn   *Connection
	closed bool
}

func (s *Subscription) Topic() Topic             { return s.filter }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

type node struct {
	children map[any]*node
	subs     []*Subscription
}

func (n *node) child(tok any, create bool) *node {
	c := n.children[tok]
	if c == nil && create {
		if n.children == nil {
			n.children = make(map[any]*node)
		}
		c = &node{}
		n.children[tok] = c
	}
	return c
}

// Bus routes messages between connections.
type Bus struct {
	mu       sync.Mutex
	root     node
	retained map[string]*Message
	qLen     int
	replySeq atomic.Uint64
}

// NewBus creates a bus whose subscriptions queue up to queueLen messages.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8
	}
	return &Bus{retained: map[string]*Message{}, qLen: queueLen}
}

// NewMessage builds a message.
func (b *Bus) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: retained}
}

// Match reports whether topic satisfies filter.
func Match(filter, topic Topic) bool {
	for i, f := range filter {
		if f == wildRest {
			return i == len(filter)-1
		}
		if i >= len(topic) {
			return false
		}
		if f != wildOne && f != topic[i] {
			return false
		}
	}
	return len(filter) == len(topic)
}

func deliver(s *Subscription, m *Message) {
	if s.closed {
		return
	}
	select {
	case s.ch <- m:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- m:
	default:
	}
}

// Publish delivers msg to every matching subscription and updates the
// retained slot for its topic.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if msg.Retained {
		key := msg.Topic.String()
		if msg.Payload == nil {
			delete(b.retained, key)
		} else {
			b.retained[key] = msg
		}
	}
	b.walk(&b.root, msg.Topic, func(s *Subscription) { deliver(s, msg) })
}

// walk visits every subscription in the trie whose filter matches topic.
func (b *Bus) walk(n *node, topic Topic, fn func(*Subscription)) {
	if h := n.child(wildRest, false); h != nil {
		for _, s := range h.subs {
			fn(s)
		}
	}
	if len(topic) == 0 {
		for _, s := range n.subs {
			fn(s)
		}
		return
	}
	if c := n.child(topic[0], false); c != nil {
		b.walk(c, topic[1:], fn)
	}
	if topic[0] != wildOne {
		if c := n.child(wildOne, false); c != nil {
			b.walk(c, topic[1:], fn)
		}
	}
}

func (b *Bus) add(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := &b.root
	for _, tok := range s.filter {
		n = n.child(tok, true)
	}
	n.subs = append(n.subs, s)
	for _, m := range b.retained {
		if Match(s.filter, m.Topic) {
			deliver(s, m)
		}
	}
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	path := []*node{&b.root}
	n := &b.root
	for _, tok := range s.filter {
		if n = n.child(tok, false); n == nil {
			return
		}
		path = append(path, n)
	}
	for i, x := range n.subs {
		if x == s {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			break
		}
	}
	for i := len(s.filter); i > 0; i-- {
		c := path[i]
		if len(c.subs) > 0 || len(c.children) > 0 {
			break
		}
		delete(path[i-1].children, s.filter[i-1])
	}
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Connection owns a set of subscriptions.
type Connection struct {
	bus  *Bus
	id   string
	mu   sync.Mutex
	subs []*Subscription
}

// NewConnection creates a connection on b.
func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{bus: b, id: id}
}

// ID returns the connection name.
func (c *Connection) ID() string { return c.id }

// NewMessage builds a message.
func (c *Connection) NewMessage(topic Topic, payload any, retained bool) *Message {
	return c.bus.NewMessage(topic, payload, retained)
}

// Publish sends msg through the bus.
func (c *Connection) Publish(msg *Message) { c.bus.Publish(msg) }

// Subscribe registers a filter. Matching retained messages are queued
// immediately.
func (c *Connection) Subscribe(filter Topic) *Subscription {
	s := &Subscription{filter: filter, ch: make(chan *Message, c.bus.qLen), conn: c}
	c.mu.Lock()
	c.subs = append(c.subs, s)
	c.mu.Unlock()
	c.bus.add(s)
	return s
}

// Unsubscribe removes s and closes its channel.
func (c *Connection) Unsubscribe(s *Subscription) {
	c.mu.Lock()
	for i, x := range c.subs {
		if x == s {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	c.bus.remove(s)
}

// Disconnect removes every subscription of the connection.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, s := range subs {
		c.bus.remove(s)
	}
}

// Request assigns msg a private reply topic, subscribes to it and publishes
// msg. The caller reads replies from the returned subscription.
func (c *Connection) Request(msg *Message) *Subscription {
	msg.ReplyTo = T("_reply", c.id, c.bus.replySeq.Add(1))
	s := c.Subscribe(msg.ReplyTo)
	c.Publish(msg)
	return s
}

// RequestWait is Request followed by waiting for the first reply.
func (c *Connection) RequestWait(ctx context.Context, msg *Message) (*Message, error) {
	s := c.Request(msg)
	defer c.Unsubscribe(s)
	select {
	case m := <-s.Channel():
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reply answers req on its ReplyTo topic. It is a no-op for messages that
// expect no reply.
func (c *Connection) Reply(req *Message, payload any, retained bool) {
	if len(req.ReplyTo) == 0 {
		return
	}
	c.Publish(&Message{Topic: req.ReplyTo, Payload: payload, Retained: retained})
}

package chatclient

import "time"

// EventKind tags the variants delivered on the transport event channel.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventMessage
	EventNotice
	EventFatal
)

// NoticeTTL is the suggested auto-dismiss interval for transient notices.
// Rendering is the consumer's concern; the CLI simply prints them.
const NoticeTTL = 4 * time.Second

// Event is the tagged union delivered by Transport.Events().
// Exactly one payload field is meaningful for a given Kind:
// Inbound for EventMessage, Text/TTL for EventNotice and EventFatal,
// Code for EventDisconnected.
type Event struct {
	Kind    EventKind
	Inbound Inbound
	Text    string
	TTL     time.Duration
	Code    int
}

func noticeEvent(text string) Event {
	return Event{Kind: EventNotice, Text: text, TTL: NoticeTTL}
}

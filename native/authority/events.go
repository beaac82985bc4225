package authority

import (
	"sync"

	"cardroom/core/types"
)

// Authority event types. Every mutation emits exactly one of these;
// denials emit EventAuthorizationDenied and nothing else.
const (
	EventAuthorizationDenied = "authorization_denied"

	EventClubCreated           = "club_created"
	EventClubConfigUpdated     = "club_config_updated"
	EventClubRakePolicyUpdated = "club_rake_policy_updated"
	EventClubDeleted           = "club_deleted"
	EventOwnershipTransferred  = "ownership_transferred"

	EventMemberInvited  = "member_invited"
	EventMemberJoined   = "member_joined"
	EventMemberLeft     = "member_left"
	EventMemberBanned   = "member_banned"
	EventMemberUnbanned = "member_unbanned"
	EventMemberPromoted = "member_promoted"
	EventMemberDemoted  = "member_demoted"

	EventTableCreated = "table_created"
	EventTableClosed  = "table_closed"
	EventTablePaused  = "table_paused"
	EventTableResumed = "table_resumed"

	EventPlayerJoinedTable    = "player_joined_table"
	EventPlayerLeftTable      = "player_left_table"
	EventPlayerKickedTable    = "player_kicked_table"
	EventPlayerBoughtInTable  = "player_bought_in_table"
	EventPlayerCashedOutTable = "player_cashed_out_table"
	EventPlayerReboughtTable  = "player_rebought_table"
	EventPlayerToppedUpTable  = "player_topped_up_table"

	EventHandStarted = "hand_started"
	EventHandEnded   = "hand_ended"

	EventRecoveryStarted    = "recovery_started"
	EventRecoveryCompleted  = "recovery_completed"
	EventInvariantViolation = "invariant_violation"
)

// Event is one append-only authority log record. Sequence is global
// across the authority; TableSeq is the per-table logical clock and is
// zero for club-scoped events.
type Event struct {
	EventID   string            `json:"eventId"`
	Sequence  uint64            `json:"sequence"`
	Type      string            `json:"type"`
	ClubID    string            `json:"clubId,omitempty"`
	TableID   string            `json:"tableId,omitempty"`
	TableSeq  uint64            `json:"tableSeq,omitempty"`
	ActorID   string            `json:"actorId,omitempty"`
	TargetID  string            `json:"targetId,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// Clone returns a deep copy of the event.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Data != nil {
		clone.Data = make(map[string]string, len(e.Data))
		for k, v := range e.Data {
			clone.Data[k] = v
		}
	}
	return &clone
}

// EventType implements the events.Event interface.
func (e *Event) EventType() string { return e.Type }

// subscriberBuffer bounds each subscription channel. A subscriber that
// falls further behind than this misses events and should resync via
// EventsSince.
const subscriberBuffer = 256

// EventLog is the append-only authority event log with fan-out
// subscriptions and a cursor for backlog reads.
type EventLog struct {
	mu     sync.Mutex
	events []*Event
	subs   map[uint64]chan *Event
	nextID uint64
	ids    types.IDSource
}

// NewEventLog returns an empty event log.
func NewEventLog() *EventLog {
	return &EventLog{
		subs: make(map[uint64]chan *Event),
		ids:  types.UUIDSource{},
	}
}

// SetIDSource overrides the event ID source.
func (l *EventLog) SetIDSource(src types.IDSource) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if src == nil {
		src = types.UUIDSource{}
	}
	l.ids = src
}

// Append assigns the event its ID and global sequence, stores it and
// fans it out. Slow subscribers are skipped rather than blocked.
func (l *EventLog) Append(evt *Event) *Event {
	if evt == nil {
		return nil
	}
	l.mu.Lock()
	evt.EventID = types.NewID(types.PrefixEvent, l.ids)
	evt.Sequence = uint64(len(l.events))
	l.events = append(l.events, evt)
	out := evt.Clone()
	for _, ch := range l.subs {
		select {
		case ch <- out:
		default:
		}
	}
	l.mu.Unlock()
	return out
}

// Subscribe returns a channel of future events and a cancel func.
func (l *EventLog) Subscribe() (<-chan *Event, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID
	l.nextID++
	ch := make(chan *Event, subscriberBuffer)
	l.subs[id] = ch
	return ch, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if existing, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(existing)
		}
	}
}

// EventsSince returns copies of events with sequence >= cursor.
func (l *EventLog) EventsSince(cursor uint64) []*Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cursor > uint64(len(l.events)) {
		cursor = uint64(len(l.events))
	}
	out := make([]*Event, 0, uint64(len(l.events))-cursor)
	for _, evt := range l.events[cursor:] {
		out = append(out, evt.Clone())
	}
	return out
}

// Len returns the number of logged events.
func (l *EventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

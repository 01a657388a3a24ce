// Package transcript keeps the running conversation log: what the
// caller said and what the translator spoke, in arrival order.
//
// Providers deliver output transcripts as partial fragments followed
// by a turn boundary. The log accumulates fragments into one open
// entry per sender and seals it on finalize, so consumers see a
// stable, append-only history plus a live tail.
package transcript

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sender identifies which side of the conversation produced an entry.
type Sender string

const (
	// SenderCaller is the local speaker.
	SenderCaller Sender = "caller"

	// SenderTranslator is the model's spoken translation.
	SenderTranslator Sender = "translator"
)

// Entry is one utterance in the log.
type Entry struct {
	ID        uuid.UUID `json:"id"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Final     bool      `json:"final"`
	Timestamp time.Time `json:"timestamp"`
}

// Log is a concurrency-safe transcript history.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	open    map[Sender]int // index of the in-progress entry per sender

	subs   map[int]chan Entry
	nextID int
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{
		open: make(map[Sender]int),
		subs: make(map[int]chan Entry),
	}
}

// Append adds text for sender. If the sender has an in-progress entry
// the text is appended to it; otherwise a new entry opens. The updated
// entry is returned and broadcast to subscribers.
func (l *Log) Append(sender Sender, text string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if idx, ok := l.open[sender]; ok {
		l.entries[idx].Text += text
		e := l.entries[idx]
		l.notify(e)
		return e
	}

	e := Entry{
		ID:        uuid.New(),
		Sender:    sender,
		Text:      text,
		Timestamp: time.Now(),
	}
	l.entries = append(l.entries, e)
	l.open[sender] = len(l.entries) - 1
	l.notify(e)
	return e
}

// AppendFinal adds a complete utterance in one step.
func (l *Log) AppendFinal(sender Sender, text string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	// A final utterance also closes any in-progress entry for the
	// sender: the provider switched from partials to a full result.
	if idx, ok := l.open[sender]; ok {
		l.entries[idx].Text = text
		l.entries[idx].Final = true
		delete(l.open, sender)
		e := l.entries[idx]
		l.notify(e)
		return e
	}

	e := Entry{
		ID:        uuid.New(),
		Sender:    sender,
		Text:      text,
		Final:     true,
		Timestamp: time.Now(),
	}
	l.entries = append(l.entries, e)
	l.notify(e)
	return e
}

// Finalize seals the sender's in-progress entry. It reports false when
// there is nothing open, which is normal at turn boundaries with no
// transcription enabled.
func (l *Log) Finalize(sender Sender) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx, ok := l.open[sender]
	if !ok {
		return Entry{}, false
	}
	l.entries[idx].Final = true
	delete(l.open, sender)
	e := l.entries[idx]
	l.notify(e)
	return e, true
}

// Entries returns a snapshot of the history in arrival order.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len reports the number of entries, open ones included.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Subscribe registers for entry updates. Every Append, AppendFinal,
// and Finalize delivers the affected entry. Slow subscribers lose
// updates rather than blocking the log; the Entries snapshot is the
// source of truth. The returned cancel function closes the channel.
func (l *Log) Subscribe(buffer int) (<-chan Entry, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID
	l.nextID++
	ch := make(chan Entry, buffer)
	l.subs[id] = ch

	cancel := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if c, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// notify is called with l.mu held.
func (l *Log) notify(e Entry) {
	for _, ch := range l.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

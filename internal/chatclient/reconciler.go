package chatclient

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shanjith1316/Capstone-Project/internal/server"
)

// ChatKey identifies a conversation independent of message direction.
type ChatKey string

// KeyFor derives the unordered conversation key for two user ids; (a,b) and
// (b,a) produce the same key.
func KeyFor(a, b int64) ChatKey {
	if a > b {
		a, b = b, a
	}
	return ChatKey(fmt.Sprintf("%d-%d", a, b))
}

// Reconciler maintains ordered, deduplicated per-conversation logs merging
// live deliveries and fetched history. One conversation may be active; its
// log is pushed through the update callback whenever it changes.
//
// Logs are deduplicated by timestamp equality and kept non-decreasing by
// timestamp. ReplaceHistory deliberately does not merge with live messages
// that arrived while the fetch was in flight; a live message racing the fetch
// can be overwritten and only reappears on the next fetch.
type Reconciler struct {
	mu       sync.Mutex
	logs     map[ChatKey][]server.MessagePayload
	active   ChatKey
	onUpdate func(messages []server.MessagePayload, scrollToBottom bool)
}

// NewReconciler creates a reconciler. onUpdate, if non-nil, receives the
// visible log whenever the active conversation changes content.
func NewReconciler(onUpdate func(messages []server.MessagePayload, scrollToBottom bool)) *Reconciler {
	return &Reconciler{
		logs:     make(map[ChatKey][]server.MessagePayload),
		onUpdate: onUpdate,
	}
}

// MergeLive folds one live message into its conversation log: any entry with
// an identical timestamp is dropped (later arrival wins), the message is
// appended, and the log is re-sorted ascending. If the affected conversation
// is active, the visible log updates with a scroll-to-bottom signal.
func (r *Reconciler) MergeLive(msg server.MessagePayload) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := KeyFor(msg.SenderID, msg.ReceiverID)
	merged := r.logs[key][:0:0]
	for _, existing := range r.logs[key] {
		if existing.Timestamp.Equal(msg.Timestamp) {
			continue
		}
		merged = append(merged, existing)
	}
	merged = append(merged, msg)
	sortByTimestamp(merged)
	r.logs[key] = merged

	if key == r.active && r.onUpdate != nil {
		r.onUpdate(snapshot(merged), true)
	}
}

// ReplaceHistory installs a freshly fetched history for the conversation,
// sorted ascending, replacing any stored log wholesale.
func (r *Reconciler) ReplaceHistory(key ChatKey, messages []server.MessagePayload) {
	sorted := snapshot(messages)
	sortByTimestamp(sorted)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.logs[key] = sorted
	if key == r.active && r.onUpdate != nil {
		r.onUpdate(snapshot(sorted), false)
	}
}

// Activate switches the visible conversation and returns its current log,
// empty if nothing is stored yet.
func (r *Reconciler) Activate(key ChatKey) []server.MessagePayload {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.active = key
	visible := snapshot(r.logs[key])
	if r.onUpdate != nil {
		r.onUpdate(visible, true)
	}
	return visible
}

// Active returns the currently active conversation key.
func (r *Reconciler) Active() ChatKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Log returns a copy of the stored log for a conversation.
func (r *Reconciler) Log(key ChatKey) []server.MessagePayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return snapshot(r.logs[key])
}

func sortByTimestamp(messages []server.MessagePayload) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})
}

func snapshot(messages []server.MessagePayload) []server.MessagePayload {
	out := make([]server.MessagePayload, len(messages))
	copy(out, messages)
	return out
}

package engine

import "sync"

// conversationLocks serializes writes per conversation. Turns and feedback
// for one conversation must never be appended concurrently; different
// conversations proceed in parallel.
//
// Lock entries are never removed: the set of live conversations in a single
// process stays small, and reclaiming entries safely would need reference
// counting that buys nothing here.
type conversationLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newConversationLocks() *conversationLocks {
	return &conversationLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the conversation and returns its unlock function.
func (c *conversationLocks) acquire(conversationID string) func() {
	c.mu.Lock()
	l, ok := c.locks[conversationID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[conversationID] = l
	}
	c.mu.Unlock()

	l.Lock()
	return l.Unlock
}

package sandbox

import (
	"bytes"
	"strings"
	"sync"
)

// maxCapturedMessages caps the message window per invocation. Kill and
// destroy messages are exempt; losing those would hide the one outcome
// the agent most needs to see.
const maxCapturedMessages = 200

// transientPrompts are interaction prompts that only mattered while the
// fragment was running; they are noise in the result.
var transientPrompts = []string{
	"What do you want to zap?",
	"What do you want to eat?",
	"What do you want to drink?",
	"What do you want to read?",
	"What do you want to wear?",
	"What do you want to wield?",
	"What do you want to drop?",
	"What do you want to throw?",
	"What do you want to use or apply?",
	"In what direction?",
	"Which direction?",
	"Really attack",
}

var killMarkers = []string{
	"You kill", "You destroy", "is killed", "is destroyed",
}

// collectMessages extracts the game messages produced during an
// invocation: everything after the before snapshot, minus transient
// prompts, de-duplicated preserving order, capped at the last
// maxCapturedMessages except kill messages, with the current persistent
// message prepended when it is not already present.
func collectMessages(before, after []string, current string) []string {
	var fresh []string
	if len(after) > len(before) {
		fresh = after[len(before):]
	}

	overflow := len(fresh) - maxCapturedMessages
	seen := make(map[string]struct{}, len(fresh))
	kept := make([]string, 0, len(fresh))
	for i, m := range fresh {
		if isTransientPrompt(m) {
			continue
		}
		if i < overflow && !isKillMessage(m) {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		kept = append(kept, m)
	}

	if current != "" && !isTransientPrompt(current) {
		if _, dup := seen[current]; !dup {
			kept = append([]string{current}, kept...)
		}
	}
	return kept
}

func isTransientPrompt(m string) bool {
	for _, p := range transientPrompts {
		if strings.HasPrefix(m, p) {
			return true
		}
	}
	return false
}

func isKillMessage(m string) bool {
	for _, k := range killMarkers {
		if strings.Contains(m, k) {
			return true
		}
	}
	return false
}

// syncBuffer is a write-locked buffer for print capture. The engine may
// read it from the supervising goroutine while an abandoned worker is
// still printing.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func truncateOutput(s string, maxBytes int) string {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s
	}
	return s[:maxBytes] + "\n... [output truncated]"
}

// Copyright 2024-2026 Aiku AI

package bridge

import "sync"

// Identity tracks the bridge's own account IDs on each platform. The IDs
// are only known after authentication (the ServerQuery client ID changes on
// every connect, the Discord bot user ID arrives with the Ready event), so
// sessions register them at auth time and the router checks them per
// message.
type Identity struct {
	mu             sync.RWMutex
	botIDs         map[Platform]string
	webhookEnabled bool
}

// NewIdentity creates an identity registry. webhookEnabled controls whether
// webhook-authored messages count as self-echo: when the bridge mirrors
// messages to a webhook that targets the bridged channel, relaying those
// posts back would loop.
func NewIdentity(webhookEnabled bool) *Identity {
	return &Identity{
		botIDs:         make(map[Platform]string),
		webhookEnabled: webhookEnabled,
	}
}

// SetBotID records the bridge's own account ID on a platform.
func (i *Identity) SetBotID(p Platform, id string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.botIDs[p] = id
}

// BotID returns the registered account ID for a platform, or "".
func (i *Identity) BotID(p Platform) string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.botIDs[p]
}

// IsSelfEcho reports whether a message originated from the bridge itself
// and must not be relayed. Evaluated fresh for every message.
func (i *Identity) IsSelfEcho(msg RelayMessage) bool {
	if msg.AuthorIsSelf {
		return true
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	if id := i.botIDs[msg.Source]; id != "" && msg.AuthorID == id {
		return true
	}
	return i.webhookEnabled && msg.AuthorIsWebhook
}

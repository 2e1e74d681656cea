// Copyright 2024-2026 Aiku AI

package bridge

import "time"

// Platform identifies which side of the bridge an entity belongs to.
type Platform string

const (
	PlatformTeamSpeak Platform = "teamspeak"
	PlatformDiscord   Platform = "discord"
)

// Peer returns the opposite platform.
func (p Platform) Peer() Platform {
	if p == PlatformTeamSpeak {
		return PlatformDiscord
	}
	return PlatformTeamSpeak
}

// RelayMessage is a normalized inbound text message. It is constructed once
// by a platform session from a raw event, consumed once by the router, and
// never persisted.
type RelayMessage struct {
	Source          Platform
	AuthorID        string
	AuthorName      string
	AuthorIsSelf    bool
	AuthorIsWebhook bool
	Body            string
	AttachmentURLs  []string
	Timestamp       time.Time
}

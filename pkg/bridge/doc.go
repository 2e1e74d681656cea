// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package bridge relays channel text messages bidirectionally between a
// TeamSpeak 3 server (via its ServerQuery interface) and a Discord channel,
// presenting each remote message as if it had been typed locally.
//
// # Core Types
//
// [Bridge] is the process-wide lifecycle controller: it wires both platform
// connections, runs them concurrently and coordinates ordered shutdown.
//
// [Supervisor] owns one platform connection and drives its
// connect/authenticate/subscribe/run cycle as an explicit state machine with
// jittered exponential backoff. Platform specifics live behind the [Session]
// interface, implemented by the TeamSpeak and Discord sessions in this
// package.
//
// [Router] is the hub: it consumes inbound [RelayMessage] events from either
// supervisor, applies echo suppression and sanitization, and dispatches the
// result to the opposite platform (and optionally to a webhook sink).
//
// # Echo Prevention
//
// Every inbound message is checked against [Identity] before any transform
// or send: messages authored by the bridge's own bot accounts, or by a
// webhook while webhook mirroring is enabled, are dropped with no side
// effects. This is the sole anti-loop mechanism and runs per message.
//
// # Sub-packages
//
//   - tsfmt strips TeamSpeak BBCode and rewrites embed-hostile link hosts.
//   - discordfmt shortens Discord CDN attachment URLs to placeholders.
package bridge

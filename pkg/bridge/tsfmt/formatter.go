// Copyright 2024-2026 Aiku AI

// Package tsfmt converts TeamSpeak message bodies for Discord display:
// BBCode markup is stripped and selected link hosts are rewritten to
// embed-friendly mirrors.
package tsfmt

import (
	"regexp"
	"strings"
)

var (
	// [URL]link[/URL] keeps the link, [URL=link]text[/URL] keeps the text.
	urlTagRe      = regexp.MustCompile(`(?i)\[url\]([^\[\]]*)\[/url\]`)
	urlNamedTagRe = regexp.MustCompile(`(?i)\[url=[^\]]*\]([^\[\]]*)\[/url\]`)
	// Stray opening or closing URL tags, e.g. from truncated messages.
	urlStrayRe = regexp.MustCompile(`(?i)\[/?url(?:=[^\]]*)?\]`)

	// Paired style markers where both halves are bare tags.
	simpleTagRe = regexp.MustCompile(`(?i)\[/?(?:b|i|u|s|code)\]`)
	// Parameterized markers: opening tags carry a value, closing tags do not.
	paramOpenRe  = regexp.MustCompile(`(?i)\[(?:color|size)=[^\]]*\]`)
	paramCloseRe = regexp.MustCompile(`(?i)\[/(?:color|size)\]`)
)

// StripBBCode removes BBCode formatting markers while preserving their
// inner content. It is total (never fails, worst case returns the trimmed
// input) and idempotent: stripping an already-stripped string is a no-op.
// Unmatched closing tags are dropped; unmatched opening tags lose their
// marker text only.
func StripBBCode(body string) string {
	// Loop to a fixpoint: every rule strictly shrinks the string, so this
	// terminates, and the fixpoint is what makes the function idempotent
	// even for nested tags like "[[b]b]x".
	out := body
	for {
		next := stripOnce(out)
		if next == out {
			break
		}
		out = next
	}
	return strings.TrimSpace(out)
}

// stripOnce applies one round of tag removal. Removing a tag can expose a
// new one (e.g. "[[b]b]x"), which is why StripBBCode loops to a fixpoint.
func stripOnce(body string) string {
	out := urlTagRe.ReplaceAllString(body, "$1")
	out = urlNamedTagRe.ReplaceAllString(out, "$1")
	out = urlStrayRe.ReplaceAllString(out, "")
	out = simpleTagRe.ReplaceAllString(out, "")
	out = paramOpenRe.ReplaceAllString(out, "")
	out = paramCloseRe.ReplaceAllString(out, "")
	return out
}

// Link hosts whose default embeds are poor on Discord; the community
// mirrors render proper previews.
var embedRewrites = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?i)https?://(?:www\.)?x\.com/`), "https://fixupx.com/"},
	{regexp.MustCompile(`(?i)https?://(?:www\.)?twitter\.com/`), "https://fxtwitter.com/"},
}

// RewriteEmbedURLs replaces known poorly-embedding link hosts with their
// embed-friendly equivalents. Applied only in the TeamSpeak-to-Discord
// direction.
func RewriteEmbedURLs(body string) string {
	out := body
	for _, rw := range embedRewrites {
		out = rw.pattern.ReplaceAllString(out, rw.replacement)
	}
	return out
}

// Copyright 2024-2026 Aiku AI

// Package discordfmt converts Discord message bodies for TeamSpeak display.
// Discord CDN attachment URLs are long, signed and expire; they are replaced
// with short media-type placeholders instead of being relayed verbatim.
package discordfmt

import (
	"regexp"
	"strings"
)

// Placeholders substituted for recognized attachment URLs.
const (
	PlaceholderImage = "[image]"
	PlaceholderVideo = "[video]"
	PlaceholderAudio = "[audio]"
	PlaceholderFile  = "[file]"
)

// cdnURLRe matches Discord attachment CDN URLs embedded in message text.
var cdnURLRe = regexp.MustCompile(`https?://(?:cdn\.discordapp\.com|media\.discordapp\.net)/[^\s<>()\[\]]+`)

var (
	imageExts = extSet("png", "jpg", "jpeg", "gif", "bmp", "webp", "svg",
		"tiff", "tif", "ico", "heic", "heif", "jfif")
	videoExts = extSet("mp4", "avi", "mov", "mkv", "wmv", "flv", "webm",
		"m4v", "3gp", "ogv", "mpg", "mpeg", "mp2", "mpe", "mpv", "m2v")
	audioExts = extSet("mp3", "wav", "flac", "aac", "ogg", "m4a", "wma", "opus")
)

func extSet(exts ...string) map[string]bool {
	m := make(map[string]bool, len(exts))
	for _, e := range exts {
		m[e] = true
	}
	return m
}

// ShortenAttachmentURLs replaces every recognized attachment URL with a
// media-type placeholder. URLs found in the body are replaced in place;
// attachment URLs not present in the body (Discord delivers attachments
// separately from the text content) are appended as placeholders. A body
// containing no recognized URLs and no attachments is returned unchanged.
func ShortenAttachmentURLs(body string, attachmentURLs []string) string {
	out := cdnURLRe.ReplaceAllStringFunc(body, Placeholder)
	for _, u := range attachmentURLs {
		if u == "" || strings.Contains(body, u) {
			continue
		}
		p := Placeholder(u)
		if out == "" {
			out = p
			continue
		}
		out += " " + p
	}
	return out
}

// Placeholder classifies a single URL by file extension. URLs on a
// recognized CDN host with an unknown extension default to [file];
// non-attachment URLs pass through unchanged.
func Placeholder(rawURL string) string {
	if !cdnURLRe.MatchString(rawURL) {
		return rawURL
	}
	switch ext := urlExtension(rawURL); {
	case imageExts[ext]:
		return PlaceholderImage
	case videoExts[ext]:
		return PlaceholderVideo
	case audioExts[ext]:
		return PlaceholderAudio
	default:
		return PlaceholderFile
	}
}

// urlExtension extracts the lowercase file extension from a URL path,
// ignoring any query string or fragment.
func urlExtension(rawURL string) string {
	path := rawURL
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	slash := strings.LastIndexByte(path, '/')
	dot := strings.LastIndexByte(path, '.')
	if dot <= slash {
		return ""
	}
	return strings.ToLower(path[dot+1:])
}

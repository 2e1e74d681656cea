// Copyright 2024-2026 Aiku AI

package discordfmt

import "testing"

func TestShortenAttachmentURLs_InBody(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			"image",
			"look https://cdn.discordapp.com/attachments/1/2/cat.png",
			"look [image]",
		},
		{
			"image with query",
			"https://cdn.discordapp.com/attachments/1/2/cat.png?ex=abc&is=def",
			"[image]",
		},
		{
			"video on media host",
			"https://media.discordapp.net/attachments/1/2/clip.mp4",
			"[video]",
		},
		{
			"audio",
			"https://cdn.discordapp.com/attachments/1/2/song.mp3 nice",
			"[audio] nice",
		},
		{
			"unknown extension defaults to file",
			"https://cdn.discordapp.com/attachments/1/2/archive.zip",
			"[file]",
		},
		{
			"no extension defaults to file",
			"https://cdn.discordapp.com/attachments/1/2/blob",
			"[file]",
		},
		{
			"foreign url untouched",
			"https://example.com/cat.png",
			"https://example.com/cat.png",
		},
		{"plain text untouched", "just words", "just words"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ShortenAttachmentURLs(tc.in, nil); got != tc.want {
				t.Errorf("ShortenAttachmentURLs(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestShortenAttachmentURLs_AttachmentList(t *testing.T) {
	t.Parallel()
	// Empty body with one image attachment yields exactly the placeholder.
	got := ShortenAttachmentURLs("", []string{"https://cdn.discordapp.com/attachments/1/2/cat.png"})
	if got != "[image]" {
		t.Errorf("empty body + image attachment = %q, want [image]", got)
	}

	// Attachments are appended after the body text.
	got = ShortenAttachmentURLs("caption", []string{"https://cdn.discordapp.com/attachments/1/2/clip.webm"})
	if got != "caption [video]" {
		t.Errorf("got %q, want %q", got, "caption [video]")
	}

	// An attachment URL already present in the body is not duplicated.
	url := "https://cdn.discordapp.com/attachments/1/2/cat.png"
	got = ShortenAttachmentURLs("see "+url, []string{url})
	if got != "see [image]" {
		t.Errorf("got %q, want %q", got, "see [image]")
	}

	// Multiple attachments keep their order.
	got = ShortenAttachmentURLs("", []string{
		"https://cdn.discordapp.com/attachments/1/2/a.png",
		"https://cdn.discordapp.com/attachments/1/2/b.ogg",
	})
	if got != "[image] [audio]" {
		t.Errorf("got %q, want %q", got, "[image] [audio]")
	}
}

func TestShortenAttachmentURLs_Unchanged(t *testing.T) {
	t.Parallel()
	// A body with zero recognized URLs must come back byte-for-byte equal.
	bodies := []string{
		"hello world",
		"  leading and trailing  ",
		"https://example.com/a.png and http://other.net/b.mp4",
		"cdn.discordapp.com/no-scheme.png",
	}
	for _, b := range bodies {
		if got := ShortenAttachmentURLs(b, nil); got != b {
			t.Errorf("ShortenAttachmentURLs(%q) = %q, want unchanged", b, got)
		}
	}
}

func TestPlaceholder(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want string
	}{
		{"https://cdn.discordapp.com/attachments/1/2/a.JPG", PlaceholderImage},
		{"https://cdn.discordapp.com/attachments/1/2/a.mov?x=1", PlaceholderVideo},
		{"https://media.discordapp.net/attachments/1/2/a.opus", PlaceholderAudio},
		{"https://cdn.discordapp.com/attachments/1/2/a.pdf", PlaceholderFile},
		{"https://example.com/a.png", "https://example.com/a.png"},
	}
	for _, tc := range cases {
		if got := Placeholder(tc.in); got != tc.want {
			t.Errorf("Placeholder(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func FuzzShortenAttachmentURLs(f *testing.F) {
	f.Add("https://cdn.discordapp.com/attachments/1/2/cat.png", "")
	f.Add("plain text", "https://cdn.discordapp.com/a.mp3")
	f.Add("", "")
	f.Add("?#.", "..")

	f.Fuzz(func(t *testing.T, body, attachment string) {
		var urls []string
		if attachment != "" {
			urls = []string{attachment}
		}
		out := ShortenAttachmentURLs(body, urls)
		// Determinism.
		if again := ShortenAttachmentURLs(body, urls); again != out {
			t.Errorf("non-deterministic: %q then %q", out, again)
		}
	})
}

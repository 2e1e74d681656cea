// Copyright 2024-2026 Aiku AI

package ts3query

import "strings"

// ServerQuery uses a custom escaping scheme instead of quoting: spaces,
// pipes, slashes, backslashes and control characters are replaced with
// backslash sequences in both command arguments and response values.
var (
	escaper = strings.NewReplacer(
		"\\", `\\`,
		"/", `\/`,
		" ", `\s`,
		"|", `\p`,
		"\a", `\a`,
		"\b", `\b`,
		"\f", `\f`,
		"\n", `\n`,
		"\r", `\r`,
		"\t", `\t`,
		"\v", `\v`,
	)
	unescaper = strings.NewReplacer(
		`\\`, "\\",
		`\/`, "/",
		`\s`, " ",
		`\p`, "|",
		`\a`, "\a",
		`\b`, "\b",
		`\f`, "\f",
		`\n`, "\n",
		`\r`, "\r",
		`\t`, "\t",
		`\v`, "\v",
	)
)

// Escape encodes a raw string for use as a ServerQuery argument value.
func Escape(s string) string {
	return escaper.Replace(s)
}

// Unescape decodes a ServerQuery-escaped value back to its raw form.
// Unknown escape sequences are left untouched.
func Unescape(s string) string {
	return unescaper.Replace(s)
}

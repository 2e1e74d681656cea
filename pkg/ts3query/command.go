// Copyright 2024-2026 Aiku AI

package ts3query

import (
	"strconv"
	"strings"
)

// Cmd builds a single ServerQuery command line. Argument values are escaped
// when the command is rendered, so callers always pass raw strings.
type Cmd struct {
	name string
	args []cmdArg
}

type cmdArg struct {
	key   string
	value string
}

// NewCmd starts a command with the given name, e.g. "sendtextmessage".
func NewCmd(name string) *Cmd {
	return &Cmd{name: name}
}

// Arg appends a key=value argument.
func (c *Cmd) Arg(key, value string) *Cmd {
	c.args = append(c.args, cmdArg{key: key, value: value})
	return c
}

// IntArg appends a key=value argument with an integer value.
func (c *Cmd) IntArg(key string, value int) *Cmd {
	return c.Arg(key, strconv.Itoa(value))
}

// String renders the command as a wire line without the trailing newline.
func (c *Cmd) String() string {
	var sb strings.Builder
	sb.WriteString(c.name)
	for _, a := range c.args {
		sb.WriteByte(' ')
		sb.WriteString(a.key)
		sb.WriteByte('=')
		sb.WriteString(Escape(a.value))
	}
	return sb.String()
}

// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package protocol implements the RocketMQ remoting wire protocol: the
// RemotingCommand frame layout, the JSON and compact binary header codecs,
// request/response codes and the route metadata carried in name-server
// responses.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Version is the remoting protocol version this client reports.
const Version = 431

// Flag bits of a RemotingCommand.
const (
	responseFlag int32 = 1 << 0
	onewayFlag   int32 = 1 << 1
)

// LanguageCode identifies the client implementation language on the wire.
type LanguageCode byte

// Language codes from the reference remoting protocol.
const (
	LanguageJava LanguageCode = iota
	LanguageCPP
	LanguageDotNet
	LanguagePython
	LanguageDelphi
	LanguageErlang
	LanguageRuby
	LanguageOther
	LanguageHTTP
	LanguageGo
	LanguagePHP
	LanguageOMS
)

var languageNames = map[LanguageCode]string{
	LanguageJava:   "JAVA",
	LanguageCPP:    "CPP",
	LanguageDotNet: "DOTNET",
	LanguagePython: "PYTHON",
	LanguageDelphi: "DELPHI",
	LanguageErlang: "ERLANG",
	LanguageRuby:   "RUBY",
	LanguageOther:  "OTHER",
	LanguageHTTP:   "HTTP",
	LanguageGo:     "GO",
	LanguagePHP:    "PHP",
	LanguageOMS:    "OMS",
}

// String returns the wire name of the language code.
func (l LanguageCode) String() string {
	if name, ok := languageNames[l]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", byte(l))
}

// MarshalJSON encodes the language code as its name, matching the reference
// header schema.
func (l LanguageCode) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON accepts both the name form used by brokers and the numeric
// form some gateways emit.
func (l *LanguageCode) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		for code, n := range languageNames {
			if n == name {
				*l = code
				return nil
			}
		}
		*l = LanguageOther
		return nil
	}
	var num byte
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("invalid language code %q", data)
	}
	*l = LanguageCode(num)
	return nil
}

// RemotingCommand is one request or response on a remoting connection.
// Code identifies the operation, Opaque correlates a response with its
// request, ExtFields carries the flattened typed header and Body is opaque
// to the protocol layer.
type RemotingCommand struct {
	Code      int16
	Language  LanguageCode
	Version   int16
	Opaque    int32
	Flag      int32
	Remark    string
	ExtFields map[string]string
	Body      []byte
}

// NewCommand builds a request command with the given ext fields and body.
func NewCommand(code int16, extFields map[string]string, body []byte) *RemotingCommand {
	return &RemotingCommand{
		Code:      code,
		Language:  LanguageGo,
		Version:   Version,
		ExtFields: extFields,
		Body:      body,
	}
}

// NewRequest builds a request command from a typed header, flattening it
// into ext fields.
func NewRequest(code int16, header CustomHeader, body []byte) *RemotingCommand {
	var ext map[string]string
	if header != nil {
		ext = header.Encode()
	}
	return NewCommand(code, ext, body)
}

// IsResponse reports whether the response flag bit is set.
func (c *RemotingCommand) IsResponse() bool {
	return c.Flag&responseFlag == responseFlag
}

// MarkResponse sets the response flag bit.
func (c *RemotingCommand) MarkResponse() {
	c.Flag |= responseFlag
}

// IsOneway reports whether the oneway flag bit is set.
func (c *RemotingCommand) IsOneway() bool {
	return c.Flag&onewayFlag == onewayFlag
}

// MarkOneway sets the oneway flag bit.
func (c *RemotingCommand) MarkOneway() {
	c.Flag |= onewayFlag
}

// ExtField returns the value of one ext field, or "" when absent.
func (c *RemotingCommand) ExtField(key string) string {
	if c.ExtFields == nil {
		return ""
	}
	return c.ExtFields[key]
}

// CloneExtFields returns a copy of the command with its own ext fields map,
// so callers can add fields without mutating the original.
func (c *RemotingCommand) CloneExtFields() *RemotingCommand {
	dup := *c
	dup.ExtFields = make(map[string]string, len(c.ExtFields)+4)
	for k, v := range c.ExtFields {
		dup.ExtFields[k] = v
	}
	return &dup
}

// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package rdm

import (
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Message is an action payload, encoded as [kind, args].
type Message struct {
	Kind string
	Args []interface{}
}

// NewMessage returns a Message of the given kind.
func NewMessage(kind string, args ...interface{}) Message {
	if args == nil {
		args = []interface{}{}
	}
	return Message{Kind: kind, Args: args}
}

func (m Message) String() string {
	return fmt.Sprintf("[%s %v]", m.Kind, m.Args)
}

// MarshalJSON implements json.Marshaler.
func (m Message) MarshalJSON() ([]byte, error) {
	args := m.Args
	if args == nil {
		args = []interface{}{}
	}
	return json.Marshal([]interface{}{m.Kind, args})
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Message) UnmarshalJSON(b []byte) error {
	var parts []jsoniter.RawMessage
	if err := json.Unmarshal(b, &parts); err != nil || len(parts) != 2 {
		return errors.Wrapf(ErrMalformedPacket, "message %q", b)
	}
	if isNull(parts[0]) {
		return errors.Wrap(ErrMalformedPacket, "message kind is null")
	}
	if err := json.Unmarshal(parts[0], &m.Kind); err != nil {
		return errors.Wrapf(ErrMalformedPacket, "message kind %q", parts[0])
	}
	m.Args = nil
	if isNull(parts[1]) {
		m.Args = []interface{}{}
		return nil
	}
	if err := json.Unmarshal(parts[1], &m.Args); err != nil {
		return errors.Wrapf(ErrMalformedPacket, "message args %q", parts[1])
	}
	if m.Args == nil {
		m.Args = []interface{}{}
	}
	return nil
}

// isNull reports whether an array element decoded as JSON null,
// which jsoniter leaves as an empty RawMessage.
func isNull(raw jsoniter.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// Envelope is a Message with its sequence number, encoded as [seq, message].
type Envelope struct {
	Seq     int64
	Message Message
}

func (e Envelope) String() string {
	return fmt.Sprintf("[%d %v]", e.Seq, e.Message)
}

// MarshalJSON implements json.Marshaler.
func (e Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{e.Seq, e.Message})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Envelope) UnmarshalJSON(b []byte) error {
	var parts []jsoniter.RawMessage
	if err := json.Unmarshal(b, &parts); err != nil || len(parts) != 2 {
		return errors.Wrapf(ErrMalformedPacket, "envelope %q", b)
	}
	if isNull(parts[0]) {
		return errors.Wrap(ErrMalformedPacket, "sequence number is null")
	}
	if err := json.Unmarshal(parts[0], &e.Seq); err != nil || e.Seq < 0 {
		return errors.Wrapf(ErrMalformedPacket, "sequence number %q", parts[0])
	}
	return e.Message.UnmarshalJSON(parts[1])
}

// Packet is the body of one exchange in either direction, encoded as
// [ack, [envelope, ...]].
type Packet struct {
	Ack      int64
	Messages []Envelope
}

func (p Packet) String() string {
	return fmt.Sprintf("[Packet ack %d %v]", p.Ack, p.Messages)
}

// MarshalJSON implements json.Marshaler.
func (p Packet) MarshalJSON() ([]byte, error) {
	msgs := p.Messages
	if msgs == nil {
		msgs = []Envelope{}
	}
	return json.Marshal([]interface{}{p.Ack, msgs})
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Packet) UnmarshalJSON(b []byte) error {
	var parts []jsoniter.RawMessage
	if err := json.Unmarshal(b, &parts); err != nil || len(parts) != 2 {
		return errors.Wrapf(ErrMalformedPacket, "packet %q", b)
	}
	if isNull(parts[0]) {
		return errors.Wrap(ErrMalformedPacket, "ack is null")
	}
	if err := json.Unmarshal(parts[0], &p.Ack); err != nil || p.Ack < -1 {
		return errors.Wrapf(ErrMalformedPacket, "ack %q", parts[0])
	}
	if isNull(parts[1]) {
		p.Messages = []Envelope{}
		return nil
	}
	var raw []jsoniter.RawMessage
	if err := json.Unmarshal(parts[1], &raw); err != nil {
		return errors.Wrapf(ErrMalformedPacket, "messages %q", parts[1])
	}
	p.Messages = make([]Envelope, len(raw))
	for i := range raw {
		if err := p.Messages[i].UnmarshalJSON(raw[i]); err != nil {
			return err
		}
	}
	return nil
}

// ReadPacket decodes a Packet from r, reading at most limit bytes.
// A limit of zero or less means no limit.
func ReadPacket(r io.Reader, limit int64) (p Packet, err error) {
	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	var b []byte
	if b, err = io.ReadAll(r); err != nil {
		return p, errors.WithStack(err)
	}
	if limit > 0 && int64(len(b)) > limit {
		return p, errors.Wrapf(ErrMalformedPacket, "packet larger than %d bytes", limit)
	}
	err = p.UnmarshalJSON(b)
	return
}

// WritePacket encodes p to w.
func WritePacket(w io.Writer, p Packet) (err error) {
	var b []byte
	if b, err = p.MarshalJSON(); err == nil {
		_, err = w.Write(b)
	}
	return errors.WithStack(err)
}

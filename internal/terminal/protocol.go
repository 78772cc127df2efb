package terminal

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bytedance/sonic"
)

// FrameType identifies a control message
type FrameType string

const (
	// Inbound
	FrameInput     FrameType = "input"
	FrameResize    FrameType = "resize"
	FrameHeartbeat FrameType = "heartbeat"

	// Outbound
	FrameOutput  FrameType = "output"
	FrameSession FrameType = "session"
	FrameError   FrameType = "error"
)

// OutputMode selects how pty output is put on the wire
type OutputMode string

const (
	// OutputFramed wraps output in {"type":"output","data":...} frames and
	// sends session, heartbeat and error frames.
	OutputFramed OutputMode = "framed"
	// OutputRaw sends pty bytes as bare text frames and nothing else, for
	// clients that write every message straight into a terminal widget.
	OutputRaw OutputMode = "raw"
)

// Frame is a decoded inbound control message
type Frame struct {
	Type FrameType
	Data string
	Rows int
	Cols int
}

// wireFrame uses pointers so a missing "type" can be told apart from an
// empty one.
type wireFrame struct {
	Type *string `json:"type"`
	Data string  `json:"data"`
	Rows int     `json:"rows"`
	Cols int     `json:"cols"`
}

var codec = sonic.ConfigStd

// DecodeFrame parses an inbound text frame. Anything that is not a JSON
// object with a string "type" is returned as raw input.
func DecodeFrame(raw []byte) Frame {
	var w wireFrame
	if err := codec.Unmarshal(raw, &w); err != nil || w.Type == nil {
		return Frame{Type: FrameInput, Data: string(raw)}
	}

	return Frame{
		Type: FrameType(*w.Type),
		Data: w.Data,
		Rows: w.Rows,
		Cols: w.Cols,
	}
}

type outputFrame struct {
	Type FrameType `json:"type"`
	Data string    `json:"data"`
}

type heartbeatFrame struct {
	Type      FrameType `json:"type"`
	Timestamp int64     `json:"timestamp"`
}

type sessionFrame struct {
	Type      FrameType `json:"type"`
	SessionID string    `json:"session_id"`
}

type errorFrame struct {
	Type    FrameType `json:"type"`
	Message string    `json:"message"`
}

// EncodeOutput builds an output frame around data.
func EncodeOutput(data string) []byte {
	return mustEncode(outputFrame{Type: FrameOutput, Data: data})
}

// EncodeHeartbeat builds a heartbeat ping stamped with t.
func EncodeHeartbeat(t time.Time) []byte {
	return mustEncode(heartbeatFrame{Type: FrameHeartbeat, Timestamp: t.Unix()})
}

// EncodeSession announces the id the remote end is attached to.
func EncodeSession(id string) []byte {
	return mustEncode(sessionFrame{Type: FrameSession, SessionID: id})
}

// EncodeError reports a failure to the remote end.
func EncodeError(msg string) []byte {
	return mustEncode(errorFrame{Type: FrameError, Message: msg})
}

// mustEncode marshals frames built only from strings and ints, which cannot fail.
func mustEncode(v interface{}) []byte {
	b, err := codec.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// utf8Carry turns an arbitrary byte stream into valid UTF-8 strings. A rune
// split across two reads is held back until its remaining bytes arrive.
type utf8Carry struct {
	pending []byte
}

func (c *utf8Carry) take(p []byte) string {
	buf := make([]byte, 0, len(c.pending)+len(p))
	buf = append(buf, c.pending...)
	buf = append(buf, p...)
	c.pending = c.pending[:0]

	cut := len(buf)
	for i := len(buf) - 1; i >= 0 && i > len(buf)-utf8.UTFMax; i-- {
		if utf8.RuneStart(buf[i]) {
			if !utf8.FullRune(buf[i:]) {
				cut = i
			}
			break
		}
	}
	c.pending = append(c.pending, buf[cut:]...)

	return strings.ToValidUTF8(string(buf[:cut]), "�")
}

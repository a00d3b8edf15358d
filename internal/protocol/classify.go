package protocol

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Kind is the classification of an inbound unit message.
type Kind int

const (
	KindUnknown Kind = iota
	KindSpawn
	KindWait
	KindSetForeground
	KindOutput
	KindExit
)

func (k Kind) String() string {
	switch k {
	case KindSpawn:
		return "spawn"
	case KindWait:
		return "wait"
	case KindSetForeground:
		return "setfg"
	case KindOutput:
		return "output"
	case KindExit:
		return "exit"
	default:
		return "unknown"
	}
}

// Message is a classified inbound message.
type Message struct {
	Kind     Kind
	Spawn    *SpawnRequest
	Wait     *WaitRequest
	SetFG    *SetForegroundRequest
	Text     string // output text with the session prefix removed
	ExitCode int
	Raw      json.RawMessage
}

// Classify inspects the leading discriminator of raw and decodes it.
// Objects are routed by their "command" field, strings by the session
// prefix or the exit marker. Anything that fails to decode is KindUnknown.
func Classify(raw json.RawMessage, prefix string) Message {
	msg := Message{Kind: KindUnknown, Raw: raw}
	b := bytes.TrimSpace(raw)
	if len(b) == 0 {
		return msg
	}

	switch b[0] {
	case '{':
		var head struct {
			Command string `json:"command"`
		}
		if err := json.Unmarshal(b, &head); err != nil {
			return msg
		}
		switch head.Command {
		case "spawn", "nacl_spawn":
			var req SpawnRequest
			if err := json.Unmarshal(b, &req); err != nil {
				return msg
			}
			msg.Kind, msg.Spawn = KindSpawn, &req
		case "wait", "nacl_wait":
			var req WaitRequest
			if err := json.Unmarshal(b, &req); err != nil {
				return msg
			}
			msg.Kind, msg.Wait = KindWait, &req
		case "setfg":
			var req SetForegroundRequest
			if err := json.Unmarshal(b, &req); err != nil {
				return msg
			}
			msg.Kind, msg.SetFG = KindSetForeground, &req
		}
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return msg
		}
		switch {
		case strings.HasPrefix(s, prefix):
			msg.Kind, msg.Text = KindOutput, s[len(prefix):]
		case strings.HasPrefix(s, ExitPrefix):
			msg.Kind, msg.ExitCode = KindExit, ParseExitCode(s)
		}
	}
	return msg
}

package desk

import (
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"deskwatch/internal/common"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrMalformed marks an inbound frame that failed the structural parse.
var ErrMalformed = errors.New("malformed desk message")

// Kind classifies an inbound push message.
type Kind int

const (
	KindUnknown Kind = iota
	KindSnapshot
	KindDeskUpdate
)

func (k Kind) String() string {
	switch k {
	case KindSnapshot:
		return common.MsgTypeSnapshot
	case KindDeskUpdate:
		return common.MsgTypeDeskUpdate
	default:
		return "unknown"
	}
}

// Inbound is a parsed push message. Data is only set for snapshot-bearing kinds.
type Inbound struct {
	Kind Kind
	Type string
	Data map[string]any
}

// CarriesSnapshot reports whether the message replaces the current snapshot.
func (m Inbound) CarriesSnapshot() bool {
	return m.Kind == KindSnapshot || m.Kind == KindDeskUpdate
}

type envelope struct {
	Type *string             `json:"type"`
	Data jsoniter.RawMessage `json:"data"`
}

// ParseInbound decodes one frame into the snapshot | desk_update | unknown union.
// A frame must be a JSON object with a string "type". Snapshot-bearing frames
// must carry an object in "data".
func ParseInbound(frame []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == nil {
		return Inbound{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	msg := Inbound{Type: *env.Type}
	switch *env.Type {
	case common.MsgTypeSnapshot:
		msg.Kind = KindSnapshot
	case common.MsgTypeDeskUpdate:
		msg.Kind = KindDeskUpdate
	default:
		return msg, nil
	}

	if len(env.Data) == 0 {
		return Inbound{}, fmt.Errorf("%w: %s without data", ErrMalformed, *env.Type)
	}
	var data map[string]any
	if err := json.Unmarshal(env.Data, &data); err != nil || data == nil {
		return Inbound{}, fmt.Errorf("%w: %s data is not an object", ErrMalformed, *env.Type)
	}
	msg.Data = data
	return msg, nil
}

// Outbound is a message sent to the desk service.
type Outbound struct {
	Type string `json:"type"`
}

// GetSnapshot asks the server for the current full state.
var GetSnapshot = Outbound{Type: common.MsgTypeGetSnapshot}

// Snapshot is the desk state at a point in time. It is replaced wholesale on
// every update and must not be mutated after publication.
type Snapshot struct {
	Data       map[string]any
	Kind       Kind
	ReceivedAt time.Time
}

// Section returns a top-level section such as "positions" or "daily_pnl".
func (s *Snapshot) Section(name string) (any, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.Data[name]
	return v, ok
}

// Lookup walks nested objects, e.g. Lookup("daily_pnl", "daily_pnl").
func (s *Snapshot) Lookup(path ...string) (any, bool) {
	if s == nil || len(path) == 0 {
		return nil, false
	}
	var cur any = s.Data
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// Float is Lookup for numeric leaves.
func (s *Snapshot) Float(path ...string) (float64, bool) {
	v, ok := s.Lookup(path...)
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// List is Lookup for array leaves.
func (s *Snapshot) List(path ...string) []any {
	v, ok := s.Lookup(path...)
	if !ok {
		return nil
	}
	l, _ := v.([]any)
	return l
}

// MarshalData re-encodes the snapshot payload, e.g. for the local journal.
func (s *Snapshot) MarshalData() ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil snapshot")
	}
	return json.Marshal(s.Data)
}

// SnapshotFromJSON rebuilds a snapshot from MarshalData output.
func SnapshotFromJSON(data []byte, receivedAt time.Time) (*Snapshot, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if m == nil {
		return nil, errors.New("snapshot is not an object")
	}
	return &Snapshot{Data: m, Kind: KindSnapshot, ReceivedAt: receivedAt}, nil
}

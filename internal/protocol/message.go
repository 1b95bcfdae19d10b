package protocol

import "time"

// DecodedMessage is the tagged union the Frame Codec decodes a validated
// Frame into. Only the concrete types below implement it; downstream code
// dispatches on the concrete type with a type switch and never reaches
// into fields that don't apply to the variant it matched.
type DecodedMessage interface {
	decodedMessage()
}

// Login is the Jimi login handshake: IMEI presentation plus device type
// and timezone/language byte.
type Login struct {
	IMEI   string
	TypeID uint16
	TZLang uint16
	Serial uint16
}

func (Login) decodedMessage() {}

// Heartbeat is a keepalive frame carrying only a serial (Jimi) or acting
// as Ruptela command 16. Command is the Jimi protocol id that must be
// echoed back in the ACK (0x23 or 0x36); unused for Ruptela.
type Heartbeat struct {
	Serial   uint16
	Command  uint8
	Protocol Family
}

func (Heartbeat) decodedMessage() {}

// TimeRequest is the Jimi device asking the server for current time
// (protocol 0x8A).
type TimeRequest struct {
	Serial uint16
}

func (TimeRequest) decodedMessage() {}

// CellInfo is the cell-tower identification accompanying a Jimi GPS fix.
type CellInfo struct {
	MCC    uint16
	MNC    uint16
	LAC    uint32
	CellID uint64
}

// GpsFix is a single position report, from either family, normalized to
// the canonical shape before it reaches the Normalizer.
type GpsFix struct {
	Timestamp  time.Time
	Lat        float64
	Lon        float64
	Speed      float64
	Course     float64
	Satellites int
	Positioned bool
	RealTime   bool
	Cell       *CellInfo
	Serial     uint16
	Protocol   Family
}

func (GpsFix) decodedMessage() {}

// Record is one Ruptela telemetry record inside a Records message.
type Record struct {
	Timestamp  time.Time
	Priority   uint8
	Lat        float64
	Lon        float64
	Altitude   float64
	Course     float64
	Satellites uint8
	Speed      uint16
	HDOP       float64
	EventID    uint16
	// IOElements is keyed by element byte-width (1, 2, 4, or 8), then by
	// IO id, to its raw integer value.
	IOElements map[int]map[int]int64
}

// Records is a Ruptela batch of telemetry records (command 1 or 68).
type Records struct {
	IMEI        string
	CommandID   uint8
	Records     []Record
	RecordsLeft uint8
}

func (Records) decodedMessage() {}

// Identification is the Ruptela device-identification frame (command 15).
type Identification struct {
	IMEI       string
	CommandID  uint8
	DeviceType string
	Firmware   string
	IMSI       string
	Operator   string
}

func (Identification) decodedMessage() {}

// Unknown carries a payload whose command the Codec did not recognize.
// A recognized command whose payload is too short is not downgraded
// here; the Codec returns a DecodeError for it instead.
type Unknown struct {
	Protocol Family
	Serial   uint16
	Command  uint8
	Payload  []byte
}

func (Unknown) decodedMessage() {}

// StandardMessage is the self-describing object the Subscriber Fan-out
// hands to the (external) push-channel transport: a type tag plus a flat
// data payload, JSON-marshaled onto the subscriber's NATS subject.
type StandardMessage struct {
	Type      string                 `json:"type"` // "jimi-data", "gps-data", "alert-data"
	DeviceID  string                 `json:"imei"`
	Timestamp time.Time              `json:"timestamp"`
	Lat       float64                `json:"lat"`
	Lon       float64                `json:"lon"`
	Speed     float64                `json:"speed"`
	Course    float64                `json:"course"`
	Satellites int                   `json:"satellites"`
	Positioned bool                  `json:"positioned"`
	Valid      bool                  `json:"valid"`
	Protocol   string                `json:"protocol"`
	Serial     uint16                `json:"serial"`
	SourcePort int                   `json:"source_port"`
	Extras     map[string]interface{} `json:"extras,omitempty"`
}

// StandardCommand is a command to be sent to a device, used by the admin
// downlink bus.
type StandardCommand struct {
	Type   string                 `json:"type"`
	Params map[string]interface{} `json:"params"`
}

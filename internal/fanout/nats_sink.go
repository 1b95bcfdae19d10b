package fanout

import (
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSSink bridges one subscriber's Sink to a NATS subject, the wire
// underneath the in-process SubscriberSet, grounded on the teacher's use
// of `nats.Publish` for uplink fan-out in `internal/server`.
type NATSSink struct {
	conn    *nats.Conn
	subject string
}

// NewNATSSink builds a Sink that publishes to fms.sub.<handle>.
func NewNATSSink(conn *nats.Conn, handle string) *NATSSink {
	return &NATSSink{conn: conn, subject: fmt.Sprintf("fms.sub.%s", handle)}
}

// Deliver implements Sink.
func (n *NATSSink) Deliver(data []byte) error {
	return n.conn.Publish(n.subject, data)
}

// AdminDownlinkSubject is the subject the admin downlink command bus
// publishes operator-issued commands to, keyed by gateway instance.
func AdminDownlinkSubject(gatewayID string) string {
	return fmt.Sprintf("gateway.downlink.%s", gatewayID)
}

package fanout

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelzd27/api-ruptela/internal/protocol"
)

type recordingSink struct {
	delivered [][]byte
	failNext  bool
}

func (r *recordingSink) Deliver(data []byte) error {
	if r.failNext {
		return errors.New("write failed")
	}
	r.delivered = append(r.delivered, data)
	return nil
}

func TestPublishSkipsUnauthenticatedSubscribers(t *testing.T) {
	set := NewSubscriberSet()
	sink := &recordingSink{}
	set.Attach("handle-1", sink)

	err := set.Publish(protocol.StandardMessage{Type: "gps-data", DeviceID: "imei-1"})
	require.NoError(t, err)

	assert.Empty(t, sink.delivered, "unauthenticated subscriber must not receive deliveries")
}

func TestPublishDeliversToAuthenticatedSubscribers(t *testing.T) {
	set := NewSubscriberSet()
	sink := &recordingSink{}
	set.Attach("handle-1", sink)
	require.True(t, set.Authenticate("handle-1"))

	err := set.Publish(protocol.StandardMessage{Type: "gps-data", DeviceID: "imei-1"})
	require.NoError(t, err)

	require.Len(t, sink.delivered, 1)
	assert.Contains(t, string(sink.delivered[0]), "imei-1")
}

func TestPublishDetachesOnDeliveryFailureWithoutBlockingOthers(t *testing.T) {
	set := NewSubscriberSet()
	failing := &recordingSink{failNext: true}
	ok := &recordingSink{}
	set.Attach("failing", failing)
	set.Attach("ok", ok)
	require.True(t, set.Authenticate("failing"))
	require.True(t, set.Authenticate("ok"))

	err := set.Publish(protocol.StandardMessage{Type: "gps-data", DeviceID: "imei-2"})
	require.NoError(t, err)

	assert.Len(t, ok.delivered, 1, "healthy subscriber must still receive the message")
	assert.Equal(t, 1, set.Count(), "failing subscriber must be detached")
}

func TestAuthenticateUnknownHandleReturnsFalse(t *testing.T) {
	set := NewSubscriberSet()
	assert.False(t, set.Authenticate("ghost"))
}

func TestDetachRemovesSubscriber(t *testing.T) {
	set := NewSubscriberSet()
	set.Attach("h", &recordingSink{})
	set.Detach("h")
	assert.Equal(t, 0, set.Count())
}

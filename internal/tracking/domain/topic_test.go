package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicsAreDistinctMapKeys(t *testing.T) {
	m := map[Topic]int{
		GlobalTopic():           1,
		ShipmentTopic("AWB123"): 2,
		DriverTopic("AWB123"):   3,
	}
	assert.Len(t, m, 3)
	assert.Equal(t, 2, m[ShipmentTopic("AWB123")])
}

func TestParseTopic(t *testing.T) {
	tp, err := ParseTopic("dashboard", "")
	require.NoError(t, err)
	assert.Equal(t, GlobalTopic(), tp)

	tp, err = ParseTopic("tracking", "AWB1")
	require.NoError(t, err)
	assert.Equal(t, ShipmentTopic("AWB1"), tp)
	assert.Equal(t, "tracking:AWB1", tp.String())

	_, err = ParseTopic("driver", "")
	assert.ErrorIs(t, err, ErrInvalidTopic)

	_, err = ParseTopic("weather", "x")
	assert.ErrorIs(t, err, ErrInvalidTopic)
}

func TestEncodeEventWrapsPayload(t *testing.T) {
	frame, err := EncodeEvent(EventPositionUpdate, DriverPosition{DriverID: "d1", Online: true})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, EventPositionUpdate, env.Type)

	var pos DriverPosition
	require.NoError(t, json.Unmarshal(env.Data, &pos))
	assert.Equal(t, "d1", pos.DriverID)
	assert.True(t, pos.Online)
	assert.NotContains(t, string(env.Data), "ConnectionID")
}

func TestRoleFromClientType(t *testing.T) {
	assert.Equal(t, RoleDriver, RoleFromClientType("driver"))
	assert.Equal(t, RoleSubscriber, RoleFromClientType("dashboard"))
	assert.Equal(t, RoleUnknown, RoleFromClientType(""))
}

package mq

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoutingKeys(t *testing.T) {
	assert.Equal(t, "driver.location.drv-001", LocationReportKey("drv-001"))
	assert.Equal(t, "driver.status.drv-001", DriverStatusKey("drv-001"))
	assert.Equal(t, "driver.status.unknown", DriverStatusKey(""))
}

func TestReportQueueBoundToDriverTopic(t *testing.T) {
	var found bool
	for _, b := range bindings {
		if b.queue == QueueLocationReports {
			found = true
			assert.Equal(t, ExchangeDriverTopic, b.exchange)
			assert.Equal(t, RoutingLocationReports, b.key)
		}
	}
	assert.True(t, found)
}

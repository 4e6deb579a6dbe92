package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteReading records one combined signal reading. The write is
// non-blocking; points are batched and sent asynchronously.
//
// The timestamp is the reading's own (the stalest contributing
// dependency), not the wall clock at write time, so history lines up
// with what the instrument actually reported.
func (c *Client) WriteReading(signalName string, value float64, severity string, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"signal_readings",
		map[string]string{
			"signal":   signalName,
			"severity": severity,
		},
		map[string]interface{}{
			"value": value,
		},
		timestamp,
	)
	c.writeAPI.WritePoint(point)
}

// WriteSetpoint records a value commanded through a signal, so operator
// writes can be correlated against the readings that followed.
func (c *Client) WriteSetpoint(signalName string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"signal_setpoints",
		map[string]string{
			"signal": signalName,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)
	c.writeAPI.WritePoint(point)
}

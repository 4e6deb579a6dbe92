// Package influxdb stores the reading history of beamline signals.
//
// Every combined reading the telemetry recorder observes is written as a
// point in the signal_readings measurement, tagged by signal name and
// severity. Writes are batched and asynchronous; losing a batch on crash
// is acceptable for telemetry, so nothing here blocks the control path.
package influxdb

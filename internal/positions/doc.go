// Package positions saves and recalls named snapshots of motor
// positions.
//
// A snapshot captures the readback of each chosen motor at save time.
// Recalling a snapshot writes those readbacks back as setpoints,
// restoring the instrument to a known state; capture and restore both
// fan out across the motors concurrently. Snapshots are durable rows in
// SQLite, with the axis list stored as a JSON column.
package positions

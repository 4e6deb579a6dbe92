package positions

import "time"

// MotorAxis is one motor's captured state inside a snapshot.
type MotorAxis struct {
	// Name is the motor's registry name.
	Name string `json:"name"`

	// Readback is the position captured at save time.
	Readback float64 `json:"readback"`

	// Offset is added to Readback on recall. Normally zero; useful when
	// a snapshot should land slightly away from where it was taken.
	Offset float64 `json:"offset"`
}

// MotorPosition is a named, recallable snapshot of motor readbacks.
type MotorPosition struct {
	UID     string      `json:"uid"`
	Name    string      `json:"name"`
	Axes    []MotorAxis `json:"axes"`
	SavedAt time.Time   `json:"saved_at"`
}

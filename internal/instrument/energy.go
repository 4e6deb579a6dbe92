package instrument

import (
	"context"
	"fmt"
	"math"

	"github.com/halcyonbeam/halcyon-core/internal/signal"
)

// Bragg conversion constants.
const (
	// hc is h*c in eV·Angstrom; E = hc / (2 d sin θ).
	hc = 12398.419843320026

	// DSpacingSi111 is the d-spacing of a Si(111) monochromator crystal
	// in Angstrom, the default when configuration does not override it.
	DSpacingSi111 = 3.1356

	degToRad = math.Pi / 180
)

// braggToEnergy converts a Bragg angle in degrees to photon energy in
// eV for the given crystal d-spacing.
func braggToEnergy(theta, dSpacing float64) (float64, error) {
	sin := math.Sin(theta * degToRad)
	if sin <= 0 {
		return 0, fmt.Errorf("instrument: bragg angle %v deg out of range", theta)
	}
	return hc / (2 * dSpacing * sin), nil
}

// energyToBragg converts photon energy in eV to the Bragg angle in
// degrees for the given crystal d-spacing.
func energyToBragg(energy, dSpacing float64) (float64, error) {
	if energy <= 0 {
		return 0, fmt.Errorf("instrument: energy %v eV out of range", energy)
	}
	sin := hc / (2 * dSpacing * energy)
	if sin > 1 {
		return 0, fmt.Errorf("instrument: energy %v eV unreachable with d-spacing %v", energy, dSpacing)
	}
	return math.Asin(sin) / degToRad, nil
}

// NewEnergyPositioner builds the beamline energy pseudo-axis as a
// derived signal over the monochromator Bragg motor. Writing an energy
// in eV moves the Bragg axis to the matching angle; readbacks convert
// the angle back to energy. If dSpacing is zero the Si(111) spacing is
// used.
func NewEnergyPositioner(mono signal.ControlPoint, dSpacing float64) (*signal.DerivedSignal, error) {
	if mono == nil {
		return nil, fmt.Errorf("instrument: energy positioner requires a mono motor")
	}
	if dSpacing == 0 {
		dSpacing = DSpacingSi111
	}
	if dSpacing < 0 {
		return nil, fmt.Errorf("instrument: d-spacing must be positive, got %v", dSpacing)
	}

	return signal.NewDerivedSignal(signal.DerivedConfig{
		Datatype:    signal.DatatypeFloat64,
		DerivedFrom: map[string]signal.ControlPoint{"bragg": mono},
		Forward: func(_ context.Context, value any, _ map[string]signal.ControlPoint) (map[string]any, error) {
			energy, ok := asFloat(value)
			if !ok {
				return nil, fmt.Errorf("instrument: non-numeric energy %v (%T)", value, value)
			}
			theta, err := energyToBragg(energy, dSpacing)
			if err != nil {
				return nil, err
			}
			return map[string]any{"bragg": theta}, nil
		},
		Inverse: func(values map[string]any, _ map[string]signal.ControlPoint) (any, error) {
			theta, ok := asFloat(values["bragg"])
			if !ok {
				return nil, fmt.Errorf("instrument: non-numeric bragg angle %v", values["bragg"])
			}
			return braggToEnergy(theta, dSpacing)
		},
		Units:     "eV",
		Precision: 1,
	})
}

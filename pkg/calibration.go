package evtbuilder

// Calibrator converts raw channel values into physical units. Missing
// entries must return the raw value unchanged.
type Calibrator interface {
	CalibrateEnergy(address uint32, charge float64, timestamp uint64) float64
	CalibrateTime(address uint32, time float64, timestamp uint64) float64
}

// Calibration of one channel: energy polynomial in the charge, lowest
// order first, plus a constant time offset in ns.
type Calibration struct {
	Coefficients []float64
	TimeOffset   float64
}

func (c Calibration) Energy(charge float64) float64 {
	if len(c.Coefficients) == 0 {
		return charge
	}
	energy := 0.0
	for i := len(c.Coefficients) - 1; i >= 0; i-- {
		energy = energy*charge + c.Coefficients[i]
	}
	return energy
}

// rawCalibrator passes every value through.
type rawCalibrator struct{}

func (rawCalibrator) CalibrateEnergy(address uint32, charge float64, timestamp uint64) float64 {
	return charge
}

func (rawCalibrator) CalibrateTime(address uint32, time float64, timestamp uint64) float64 {
	return time
}

func calibratorOrRaw(c Calibrator) Calibrator {
	if c == nil {
		return rawCalibrator{}
	}
	return c
}

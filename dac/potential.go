package dac

import (
	"errors"

	"periph.io/x/conn/v3/physic"
)

const stepCount = 256

var (
	errInvalidPotential = errors.New("dac: potential out of range")
	errInvalidReference = errors.New("dac: reference must be positive")
)

// CountForPotential returns the code that makes the output closest to v when
// the device runs from reference vRef. Full scale is vRef*255/256.
func CountForPotential(v physic.ElectricPotential, vRef physic.ElectricPotential) (uint8, error) {
	if vRef <= 0 {
		return 0, errInvalidReference
	}
	if v < 0 || v > vRef {
		return 0, errInvalidPotential
	}

	count := (int64(v)*stepCount + int64(vRef)/2) / int64(vRef)
	if count > stepCount-1 {
		count = stepCount - 1
	}

	return uint8(count), nil
}

// PotentialForCount is the inverse of CountForPotential.
func PotentialForCount(count uint8, vRef physic.ElectricPotential) physic.ElectricPotential {
	return physic.ElectricPotential(int64(vRef) * int64(count) / stepCount)
}

// SetPotential converts v to an output code and writes it. The error only
// reports conversion failures; the bool is the transaction result.
func (c *Controller) SetPotential(v physic.ElectricPotential, vRef physic.ElectricPotential, powerDownAfter bool) (bool, error) {
	count, err := CountForPotential(v, vRef)
	if err != nil {
		return false, err
	}

	c.log("Output %s for %s: code %d", PotentialForCount(count, vRef), v, count)

	return c.SetOutput(count, powerDownAfter), nil
}

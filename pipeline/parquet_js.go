//go:build js

package pipeline

import (
	"errors"

	phaseenergy "github.com/flight-assurance/phase-energy"
)

func marshalAlignedParquet(*phaseenergy.Analysis) ([]byte, error) {
	return nil, errors.New("parquet output is not available in the browser build; use format=csv")
}

// Package phi provides the tuning constants derived from the golden ratio.
// Drift rates, generator weights and diplomatic thresholds trace back to Φ.
package phi

import "math"

// Phi is the golden ratio.
const Phi = 1.6180339887498948

var (
	// Agnosis (Φ⁻³): entropy, noise, the base rate of decay.
	Agnosis = math.Pow(Phi, -3) // 0.23606...

	// Psyche (Φ⁻²): the threshold of meaningful connection.
	Psyche = math.Pow(Phi, -2) // 0.38197...

	// Matter (Φ⁻¹): the fraction that persists through transformation.
	Matter = math.Pow(Phi, -1) // 0.61803...
)

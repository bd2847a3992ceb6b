package pidloop

// Engine-load buckets, % MCR.
const (
	loadLowThreshold  = 30.0
	loadHighThreshold = 70.0
)

// Seawater-temperature buckets, °C.
const (
	seaPolarBelow    = 15.0
	seaTropicalAbove = 28.0
)

type loadBucket int

const (
	loadLow loadBucket = iota
	loadMedium
	loadHigh
)

type seaBucket int

const (
	seaPolar seaBucket = iota
	seaTemperate
	seaTropical
)

// Scheduler maps operating conditions to a gain scale factor. Cold
// seawater gives the coolers margin so the loops can be lazy; tropical
// water at high load needs faster correction.
type Scheduler struct {
	factors [3][3]float64 // [sea][load]
}

// NewScheduler returns the default schedule table.
func NewScheduler() Scheduler {
	return Scheduler{
		factors: [3][3]float64{
			seaPolar:     {0.7, 0.8, 0.9},
			seaTemperate: {0.9, 1.0, 1.1},
			seaTropical:  {1.1, 1.2, 1.35},
		},
	}
}

// Factor returns the gain scale for the given engine load (% MCR) and
// seawater inlet temperature (°C).
func (s Scheduler) Factor(engineLoad, seaTemp float64) float64 {
	return s.factors[bucketSea(seaTemp)][bucketLoad(engineLoad)]
}

func bucketLoad(load float64) loadBucket {
	switch {
	case load < loadLowThreshold:
		return loadLow
	case load < loadHighThreshold:
		return loadMedium
	default:
		return loadHigh
	}
}

func bucketSea(temp float64) seaBucket {
	switch {
	case temp < seaPolarBelow:
		return seaPolar
	case temp <= seaTropicalAbove:
		return seaTemperate
	default:
		return seaTropical
	}
}

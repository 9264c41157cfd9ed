package environment

import (
	"gonum.org/v1/gonum/spatial/r1"
	"sfneuman.com/govec/timestep"
)

// IntervalLimit implements the Ender interface to end episodes
// whenever a single feature in a state observation leaves some
// interval
type IntervalLimit struct {
	intervals []r1.Interval
	indices   []int
	endType   timestep.EndType
}

// NewIntervalLimit creates and returns a new interval limit. Feature
// obsIndices[i] of a state observation is legal only within
// limits[i]. The endType argument determines what the episode end
// should be considered as.
func NewIntervalLimit(limits []r1.Interval, obsIndices []int,
	endType timestep.EndType) Ender {
	if len(limits) != len(obsIndices) {
		panic("limits should have same length as observation indices")
	}

	return &IntervalLimit{limits, obsIndices, endType}
}

// End determines whether or not the current episode should be ended,
// returning a boolean to indicate episode termination. If the episode
// should be ended, End modifies the timestep so that its StepType
// field is timestep.Last and its EndType is the appropriate ending
// type.
func (i *IntervalLimit) End(t *timestep.TimeStep) bool {
	obs := t.Observation.Vector()
	for index := range i.indices {
		featureIndex := i.indices[index]
		interval := i.intervals[index]

		if obs.AtVec(featureIndex) > interval.Max ||
			obs.AtVec(featureIndex) < interval.Min {
			t.SetEnd(i.endType)
			return true
		}
	}
	return false
}

package mkv

import "math"

// fpsCandidates and fpsDivisors are the canonical frame rates a
// DefaultDuration-derived value is snapped to, per spec.md §4.E: a
// handful of common broadcast/film rates and their NTSC-style /1.001
// variants.
var fpsCandidates = []float64{18, 24, 25, 30, 48, 60, 120}
var fpsDivisors = []float64{1, 1.001}

const fpsTolerance = 0.001

// snapFPS rounds raw to the nearest candidate/divisor pair within
// fpsTolerance (relative), or returns raw unchanged if nothing is close
// enough to call it a known rate.
func snapFPS(raw float64) float64 {
	best := raw
	bestDiff := math.Inf(1)
	for _, c := range fpsCandidates {
		for _, d := range fpsDivisors {
			candidate := c / d
			diff := math.Abs(candidate-raw) / candidate
			if diff <= fpsTolerance && diff < bestDiff {
				bestDiff = diff
				best = candidate
			}
		}
	}
	return best
}

// applyPostProcessing runs the value post-processing table (spec.md
// §4.E) against one freshly-decoded element: TimecodeScale triggers a
// retroactive rescale of any Duration seen before it, Duration itself
// defers to that rescale if TimecodeScale hasn't arrived yet, and
// DefaultDuration gets turned into a snapped frame rate.
func applyPostProcessing(pc *ParseContext, elem *Element) {
	switch elem.Name {
	case "TimecodeScale":
		pc.timecodeScale = elem.Value.Uint()
		pc.cookPendingDurations()
	case "Duration":
		if pc.timecodeScale == 0 {
			pc.pendingDurations = append(pc.pendingDurations, elem.Handle)
			return
		}
		cookDuration(pc, elem)
	case "DefaultDuration":
		raw := elem.Value.Uint()
		if raw == 0 {
			return
		}
		fps := 1e9 / float64(raw)
		elem.Value = floatValue(snapFPS(fps))
	}
}

// cookDuration rescales a Duration element's raw tick count into
// nanoseconds using the now-known TimecodeScale.
func cookDuration(pc *ParseContext, elem *Element) {
	raw := elem.Value.Float()
	elem.Value = floatValue(raw * float64(pc.timecodeScale))
}

func (pc *ParseContext) cookPendingDurations() {
	for _, h := range pc.pendingDurations {
		cookDuration(pc, pc.get(h))
	}
	pc.pendingDurations = nil
}

package decoder

// Window is a half-open frame range [Start, End) submitted to the codec in
// one call. Skip is the number of leading lookback frames whose samples are
// decoded for continuity and then discarded.
type Window struct {
	Start int
	End   int
	Skip  int
}

// Frames returns the number of frames in the window
func (w Window) Frames() int {
	return w.End - w.Start
}

// New returns the number of frames whose samples are emitted
func (w Window) New() int {
	return w.End - w.Start - w.Skip
}

// PlanWindow builds the decode window ending at end for a cursor that has
// already emitted framesDecoded frames. The window reaches back at most
// lookback frames and never before floor.
func PlanWindow(framesDecoded, lookback, floor, end int) Window {
	start := framesDecoded - lookback
	if start < 0 {
		start = 0
	}
	if start < floor {
		start = floor
	}
	if start > framesDecoded {
		start = framesDecoded
	}
	return Window{Start: start, End: end, Skip: framesDecoded - start}
}

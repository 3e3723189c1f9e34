package xact

// RPCParameter is the instance property an RPC curve drives.
type RPCParameter int

const (
	// RPCVolume is in dB x 100.
	RPCVolume RPCParameter = iota
	// RPCPitch is in cents.
	RPCPitch
	// RPCReverbSend is in dB.
	RPCReverbSend
	// RPCFilterFrequency is the clip filter cutoff in Hz.
	RPCFilterFrequency
)

func (p RPCParameter) String() string {
	switch p {
	case RPCVolume:
		return "Volume"
	case RPCPitch:
		return "Pitch"
	case RPCReverbSend:
		return "ReverbSend"
	case RPCFilterFrequency:
		return "FilterFrequency"
	}
	return "Unknown"
}

type RPCPoint struct {
	X, Y float64
}

// RPCCurve maps a variable onto a parameter through a piecewise linear
// function. Points are sorted by X when the curve is added.
type RPCCurve struct {
	Variable  string
	Parameter RPCParameter
	Points    []RPCPoint
}

// Evaluate interpolates the curve at x, holding the end values outside the
// first and last points.
func (c RPCCurve) Evaluate(x float64) float64 {
	pts := c.Points
	if len(pts) == 0 {
		return 0
	}
	if x <= pts[0].X {
		return pts[0].Y
	}
	last := pts[len(pts)-1]
	if x >= last.X {
		return last.Y
	}
	for i := 1; i < len(pts); i++ {
		a, b := pts[i-1], pts[i]
		if x > b.X {
			continue
		}
		if b.X == a.X {
			return b.Y
		}
		return a.Y + (b.Y-a.Y)*(x-a.X)/(b.X-a.X)
	}
	return last.Y
}

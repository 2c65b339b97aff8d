// Package slope tracks the trend of a signal as the least-squares slope over a sliding window of samples.
package slope

// RollingSlope maintains a fixed-size window of values and calculates the slope of the linear regression line through
// those points in O(1) time. Sample positions are their index within the window, so the slope is the change per sample.
//
// This type is not concurrency safe.
type RollingSlope struct {
	samples    []float64 // Fixed size array
	index      int       // Writing position
	count      int       // Number of values in window
	windowSize int
	sumY       float64
	sumXY      float64
	slope      float64
}

// NewRollingSlope creates a new RollingSlope with the specified window size. Window sizes < 2 are raised to 2.
func NewRollingSlope(windowSize int) *RollingSlope {
	windowSize = max(windowSize, 2)
	return &RollingSlope{
		samples:    make([]float64, windowSize),
		windowSize: windowSize,
	}
}

// AddValue adds a new value to the window and returns the current slope. Returns 0 until the window has 2 values.
func (rs *RollingSlope) AddValue(y float64) float64 {
	if rs.count == rs.windowSize {
		// Remove oldest value
		rs.sumY -= rs.samples[rs.index]

		// Shift all values left (via telescoping series)
		rs.sumXY = rs.sumXY - rs.sumY

		// Add new value at the end
		rs.sumXY += float64(rs.count-1) * y
	} else {
		// Still building up the window
		rs.sumXY += y * float64(rs.count)
		rs.count++
	}

	rs.samples[rs.index] = y
	rs.sumY += y

	// Move index forward
	rs.index = (rs.index + 1) % rs.windowSize

	rs.slope = rs.calculate()
	return rs.slope
}

// Slope returns the most recently calculated slope.
func (rs *RollingSlope) Slope() float64 {
	return rs.slope
}

// Len returns the number of values in the window.
func (rs *RollingSlope) Len() int {
	return rs.count
}

// Reset removes all values from the window.
func (rs *RollingSlope) Reset() {
	clear(rs.samples)
	rs.index = 0
	rs.count = 0
	rs.sumY = 0
	rs.sumXY = 0
	rs.slope = 0
}

func (rs *RollingSlope) calculate() float64 {
	if rs.count < 2 {
		return 0
	}

	// Calculate slope using least squares
	n := float64(rs.count)
	sumX := n * (n - 1) / 2
	sumXSquared := n * (n - 1) * (2*n - 1) / 6
	return (n*rs.sumXY - sumX*rs.sumY) / (n*sumXSquared - sumX*sumX)
}

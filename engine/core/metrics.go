package core

// frameSampleWindow is how many frames the frame-time average spans.
const frameSampleWindow = 30

// Metrics tracks the frame rate and a moving average of frame times. One
// instance per frame loop; Update is not safe for concurrent use.
type Metrics struct {
	samples     [frameSampleWindow]float64
	sampleIndex int
	avgFrameMs  float64

	frames        int32
	accumulatedMs float64
	fps           float64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// Update records one frame that took elapsedSeconds. The frame-time average
// refreshes every frameSampleWindow frames, the FPS reading once per
// accumulated second.
func (m *Metrics) Update(elapsedSeconds float64) {
	frameMs := elapsedSeconds * 1000.0

	m.samples[m.sampleIndex] = frameMs
	m.sampleIndex++
	if m.sampleIndex == frameSampleWindow {
		sum := 0.0
		for _, sample := range m.samples {
			sum += sample
		}
		m.avgFrameMs = sum / frameSampleWindow
		m.sampleIndex = 0
	}

	m.accumulatedMs += frameMs
	if m.accumulatedMs > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedMs -= 1000
		m.frames = 0
	}
	m.frames++
}

// FPS returns the frame count of the last full second.
func (m *Metrics) FPS() float64 {
	return m.fps
}

// FrameTime returns the averaged frame time in milliseconds.
func (m *Metrics) FrameTime() float64 {
	return m.avgFrameMs
}

package audio

import (
	"context"
	"time"
)

// Pump pulls the device at real-time rate and emits 20ms PCM frames for the
// network sinks. While it runs, it is the device's clock.
type Pump struct {
	dev     *Device
	frameCh chan []int16
}

// NewPump creates a pump over dev.
func NewPump(dev *Device) *Pump {
	return &Pump{
		dev:     dev,
		frameCh: make(chan []int16, 100),
	}
}

// Frames returns the channel of outgoing PCM frames (20ms each).
func (p *Pump) Frames() <-chan []int16 {
	return p.frameCh
}

// Run renders one frame per tick. Blocks until ctx is cancelled.
func (p *Pump) Run(ctx context.Context) {
	defer close(p.frameCh)

	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	buf := make([][2]float64, FrameSize)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		p.dev.Stream(buf)
		frame := ToPCM(buf, nil)

		select {
		case p.frameCh <- frame:
		case <-ctx.Done():
			return
		}
	}
}

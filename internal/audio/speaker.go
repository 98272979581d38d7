package audio

import (
	"errors"
	"fmt"
	"time"

	"github.com/gopxl/beep/v2/speaker"
)

// ErrUnavailable matches every UnavailableError.
var ErrUnavailable = errors.New("audio output unavailable")

// UnavailableError reports that no audio output could be opened.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string { return fmt.Sprintf("audio output unavailable: %v", e.Err) }
func (e *UnavailableError) Unwrap() error { return e.Err }
func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

const speakerLatency = 100 * time.Millisecond

// PlayOnSpeaker opens the local sound card and hands it the device. The
// speaker then drives the device clock.
func PlayOnSpeaker(dev *Device) error {
	if err := speaker.Init(Format.SampleRate, Format.SampleRate.N(speakerLatency)); err != nil {
		return &UnavailableError{Err: err}
	}
	speaker.Play(dev)
	return nil
}

// CloseSpeaker releases the sound card.
func CloseSpeaker() {
	speaker.Clear()
	speaker.Close()
}

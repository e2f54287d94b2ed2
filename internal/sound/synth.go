package sound

import (
	"encoding/binary"
	"math"
	"time"
)

// SampleRate is the PCM rate of every stream, in Hz.
const SampleRate = 44100

const (
	beepDuration = 50 * time.Millisecond
	fadeDuration = 10 * time.Millisecond

	minFreq = 400
	maxFreq = 1600

	minSilence = 200 * time.Millisecond
	maxSilence = 1000 * time.Millisecond
)

// Volume levels.
const (
	VolumeSilent = 0
	VolumeSmall  = 1
	VolumeMedium = 2
	VolumeLarge  = 3

	DefaultVolume = VolumeMedium
)

var amplitudes = [...]float64{
	VolumeSilent: 0,
	VolumeSmall:  0.1,
	VolumeMedium: 0.2,
	VolumeLarge:  0.4,
}

// ClampVolume forces level into [VolumeSilent, VolumeLarge].
func ClampVolume(level int) int {
	return max(VolumeSilent, min(level, VolumeLarge))
}

// Amplitude returns the peak amplitude (0..1) for a volume level.
func Amplitude(level int) float64 {
	return amplitudes[ClampVolume(level)]
}

// Beep renders a sine tone as signed 16-bit little-endian mono PCM. The last
// fadeDuration ramps linearly to zero so the tone ends without a click.
func Beep(freq, amplitude float64, d time.Duration) []byte {
	n := int(float64(SampleRate) * d.Seconds())
	fade := int(float64(SampleRate) * fadeDuration.Seconds())
	if fade >= n {
		fade = 0
	}

	buf := make([]byte, 2*n)
	for i := 0; i < n; i++ {
		v := amplitude * math.Sin(2*math.Pi*freq*float64(i)/SampleRate)
		if fade > 0 && i >= n-fade {
			v *= float64(n-1-i) / float64(fade-1)
		}
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(int16(v*math.MaxInt16)))
	}
	return buf
}

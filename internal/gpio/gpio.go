// Package gpio provides the motion sensor input and the status LED output
// with a hardware abstraction. The real implementation uses the Linux GPIO
// character device. The fakes allow testing without hardware.
package gpio

// Reader reads the raw motion signal.
type Reader interface {
	// Read returns true while the sensor reports motion.
	Read() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// LED drives the status indicator.
type LED interface {
	Set(on bool) error
	Close() error
}

// Pin defaults (BCM numbering)
const (
	DefaultChip      = "gpiochip0"
	DefaultPinMotion = 17 // radar OUT
	DefaultPinLED    = 27
)

// NopLED is used when no LED pin is configured.
type NopLED struct{}

func (NopLED) Set(bool) error { return nil }
func (NopLED) Close() error   { return nil }

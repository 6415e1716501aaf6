package gpio

import "errors"

// Domain errors for the gpio package.
var (
	// ErrHostInit is returned when the periph host drivers fail to load.
	ErrHostInit = errors.New("gpio: host initialisation failed")

	// ErrPinNotFound is returned when a pin number does not exist on this board.
	ErrPinNotFound = errors.New("gpio: pin not found")

	// ErrPinSetup is returned when a pin cannot be configured as input or output.
	ErrPinSetup = errors.New("gpio: pin setup failed")

	// ErrUnknownDriver is returned for an unrecognised hardware.driver value.
	ErrUnknownDriver = errors.New("gpio: unknown driver")
)

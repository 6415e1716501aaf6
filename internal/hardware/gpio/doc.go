// Package gpio connects the door capabilities to real or simulated pins.
//
// Two drivers are available, selected by hardware.driver:
//
//   - periph: Raspberry Pi GPIO through periph.io. The reed switch input
//     uses a pull-down and both-edge detection; the relay output is active
//     high and idles low.
//   - sim: an in-memory door for bench work. A relay pulse starts the
//     simulated door moving and the simulated reed switch reports the
//     transitions, so the agent behaves as it would on the Pi.
//
// The reed switch sits at the closed position. Opening therefore reads
// Open as soon as the door leaves the frame, while closing only reads
// Closed once the door has travelled all the way down. The simulator
// models this.
//
// Usage:
//
//	hw, err := gpio.Open(cfg.Hardware, cfg.RelayPin, cfg.ReedPin, logger)
//	if err != nil {
//	    return err
//	}
//	defer hw.Close()
//
//	engine := reconcile.New(hw.Sensor, hw.Relay, shadowClient, opts)
package gpio

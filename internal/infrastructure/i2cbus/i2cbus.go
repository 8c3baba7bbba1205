// Package i2cbus opens the host's I2C bus through periph.io.
package i2cbus

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// ErrOpenFailed indicates the host drivers or the bus could not be opened.
var ErrOpenFailed = errors.New("i2cbus: open failed")

var (
	initOnce sync.Once
	initErr  error
)

// Open initialises the host drivers once per process and opens the named
// bus. An empty name opens the first bus the host registered. The caller
// closes the returned bus.
func Open(name string) (i2c.BusCloser, error) {
	initOnce.Do(func() {
		_, initErr = host.Init()
	})
	if initErr != nil {
		return nil, fmt.Errorf("%w: host init: %w", ErrOpenFailed, initErr)
	}

	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("%w: bus %q: %w", ErrOpenFailed, name, err)
	}
	return bus, nil
}

// Names lists the buses the host registered.
func Names() []string {
	refs := i2creg.All()
	names := make([]string, 0, len(refs))
	for _, ref := range refs {
		names = append(names, ref.Name)
	}
	return names
}

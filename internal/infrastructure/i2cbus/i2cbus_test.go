package i2cbus

import (
	"errors"
	"testing"
)

func TestOpen_UnknownBus(t *testing.T) {
	bus, err := Open("thermolink-no-such-bus")
	if err == nil {
		bus.Close()
		t.Fatal("Open() of an unknown bus succeeded")
	}
	if !errors.Is(err, ErrOpenFailed) {
		t.Errorf("Open() error = %v, want ErrOpenFailed", err)
	}
}

func TestNames(t *testing.T) {
	// Hosts without I2C register nothing; the call must still succeed.
	if _, err := Open("thermolink-no-such-bus"); err == nil {
		t.Skip("unexpected bus present")
	}
	for _, name := range Names() {
		if name == "" {
			t.Error("Names() returned an empty bus name")
		}
	}
}

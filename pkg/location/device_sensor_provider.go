package location

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/adrianmo/go-nmea"
	"github.com/tarm/serial"
)

// DeviceSensorProvider is responsible for retrieving location data from a GPS device connected via serial port.
type DeviceSensorProvider struct {
	port     string // Serial port to which the GPS device is connected
	baudRate int    // Baud rate for the serial communication

	mu      sync.Mutex
	open    func() (io.ReadCloser, error)
	stream  io.ReadCloser
	scanner *bufio.Scanner
}

// NewDeviceSensorProvider creates a new instance of DeviceSensorProvider with the specified port and baud rate.
func NewDeviceSensorProvider(port string, baudRate int) *DeviceSensorProvider {
	d := &DeviceSensorProvider{
		port:     port,
		baudRate: baudRate,
	}
	d.open = func() (io.ReadCloser, error) {
		return serial.OpenPort(&serial.Config{Name: d.port, Baud: d.baudRate})
	}
	return d
}

// NewReaderSensorProvider reads NMEA sentences from an already opened stream.
func NewReaderSensorProvider(r io.ReadCloser) *DeviceSensorProvider {
	return &DeviceSensorProvider{
		open: func() (io.ReadCloser, error) { return r, nil },
	}
}

// GetLocation reads GPS data from the device until a GGA sentence with a fix is found.
// The port stays open between calls; a read error closes it so the next call reopens.
func (d *DeviceSensorProvider) GetLocation(ctx context.Context) (Location, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stream == nil {
		s, err := d.open()
		if err != nil {
			return Location{}, fmt.Errorf("failed to open GPS device %s: %w", d.port, err)
		}
		d.stream = s
		d.scanner = bufio.NewScanner(s)
	}

	for d.scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return Location{}, err
		}

		sentence, err := nmea.Parse(d.scanner.Text())
		if err != nil {
			// Partial lines are common right after opening the port.
			continue
		}

		gga, ok := sentence.(nmea.GGA)
		if !ok {
			continue
		}
		if gga.FixQuality == nmea.Invalid {
			continue
		}

		return Location{
			Latitude:  gga.Latitude,
			Longitude: gga.Longitude,
			Altitude:  gga.Altitude + gga.Separation, // MSL + geoid separation = HAE
			Accuracy:  gga.HDOP,                      // Use HDOP as a proxy for accuracy
		}, nil
	}

	err := d.scanner.Err()
	d.closeLocked()
	if err != nil {
		return Location{}, err
	}
	return Location{}, errors.New("no valid GPS data found")
}

// Close closes the serial port if it is open.
func (d *DeviceSensorProvider) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeLocked()
}

func (d *DeviceSensorProvider) closeLocked() error {
	if d.stream == nil {
		return nil
	}
	err := d.stream.Close()
	d.stream = nil
	d.scanner = nil
	return err
}

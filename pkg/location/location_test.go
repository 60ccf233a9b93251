package location

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockElevation struct {
	mock.Mock
}

func (m *mockElevation) Elevation(ctx context.Context, lat, lon float64) (float64, error) {
	args := m.Called(lat, lon)
	return args.Get(0).(float64), args.Error(1)
}

type failingProvider struct{ err error }

func (f failingProvider) GetLocation(context.Context) (Location, error) { return Location{}, f.err }
func (f failingProvider) Close() error                                  { return nil }

func TestTerrainCache_Key(t *testing.T) {
	c := NewTerrainCache(nil, 1e-5)
	assert.Equal(t, "1131000_4807038", c.Key(48.07038, 11.31))
	// Points within the same 1e-5 cell share a key.
	assert.Equal(t, c.Key(48.070381, 11.310001), c.Key(48.070379, 11.309999))
	assert.NotEqual(t, c.Key(48.07038, 11.31), c.Key(48.07040, 11.31))

	fine := NewTerrainCache(nil, 1e-7)
	assert.NotEqual(t, fine.Key(48.070381, 11.31), fine.Key(48.070379, 11.31))
}

func TestTerrainCache_DefaultPrecision(t *testing.T) {
	c := NewTerrainCache(nil, 0)
	assert.Equal(t, DefaultTerrainPrecision, c.precision)
}

func TestTerrainCache_HitAvoidsLookup(t *testing.T) {
	elev := new(mockElevation)
	elev.On("Elevation", 10.0, 20.0).Return(123.4, nil).Once()

	c := NewTerrainCache(elev, 1e-5)
	ctx := context.Background()

	h, err := c.Height(ctx, 10.0, 20.0)
	require.NoError(t, err)
	assert.Equal(t, 123.4, h)

	h, err = c.Height(ctx, 10.0000001, 20.0000001)
	require.NoError(t, err)
	assert.Equal(t, 123.4, h)

	hits, misses := c.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
	assert.Equal(t, 1, c.Len())
	elev.AssertExpectations(t)
}

func TestTerrainCache_ErrorNotCached(t *testing.T) {
	elev := new(mockElevation)
	elev.On("Elevation", 1.0, 2.0).Return(0.0, errors.New("timeout")).Once()
	elev.On("Elevation", 1.0, 2.0).Return(50.0, nil).Once()

	c := NewTerrainCache(elev, 1e-5)

	_, err := c.Height(context.Background(), 1.0, 2.0)
	require.Error(t, err)
	assert.Equal(t, 0, c.Len())

	h, err := c.Height(context.Background(), 1.0, 2.0)
	require.NoError(t, err)
	assert.Equal(t, 50.0, h)
	elev.AssertExpectations(t)
}

func TestTerrainCache_ConcurrentMissesShareLookup(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	release := make(chan struct{})
	elev := ElevationFunc(func(ctx context.Context, lat, lon float64) (float64, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		<-release
		return 7, nil
	})

	c := NewTerrainCache(elev, 1e-5)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := c.Height(context.Background(), 3, 4)
			assert.NoError(t, err)
			assert.Equal(t, 7.0, h)
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestTerrainCache_CanceledCallerDoesNotFailWaiters(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var lookupErr error
	elev := ElevationFunc(func(ctx context.Context, lat, lon float64) (float64, error) {
		close(started)
		<-release
		lookupErr = ctx.Err()
		return 42, nil
	})
	c := NewTerrainCache(elev, 1e-5)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Height(firstCtx, 5, 6)
		firstErr <- err
	}()
	<-started

	type result struct {
		h   float64
		err error
	}
	second := make(chan result, 1)
	go func() {
		h, err := c.Height(context.Background(), 5, 6)
		second <- result{h, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("canceled caller did not return")
	}

	close(release)
	select {
	case res := <-second:
		require.NoError(t, res.err)
		assert.Equal(t, 42.0, res.h)
	case <-time.After(2 * time.Second):
		t.Fatal("waiting caller did not return")
	}
	assert.NoError(t, lookupErr)
	assert.Equal(t, 1, c.Len())
}

func TestPositionSource_Sample(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_123)
	src := NewPositionSource(NewStaticProvider(48.1, 11.5, 500), nil).
		WithClock(func() time.Time { return now })

	pos, err := src.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, GeoPosition{Lat: 48.1, Lon: 11.5, HAE: 500, Timestamp: 1_700_000_000_123}, pos)
}

func TestPositionSource_TerrainOverridesAltitude(t *testing.T) {
	elev := new(mockElevation)
	elev.On("Elevation", 48.1, 11.5).Return(519.0, nil).Once()

	src := NewPositionSource(NewStaticProvider(48.1, 11.5, 0), NewTerrainCache(elev, 1e-5))

	for i := 0; i < 3; i++ {
		pos, err := src.Sample(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 519.0, pos.HAE)
	}
	elev.AssertExpectations(t)
}

func TestPositionSource_Unavailable(t *testing.T) {
	tests := []struct {
		name string
		src  *PositionSource
	}{
		{"provider error", NewPositionSource(failingProvider{err: errors.New("no fix")}, nil)},
		{"out of range", NewPositionSource(NewStaticProvider(95, 0, 0), nil)},
		{"terrain error", NewPositionSource(NewStaticProvider(1, 2, 0), NewTerrainCache(
			ElevationFunc(func(context.Context, float64, float64) (float64, error) {
				return 0, errors.New("tile missing")
			}), 1e-5))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.src.Sample(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrPositionUnavailable))
		})
	}
}

func TestSimulatedProvider_MovesAlongHeading(t *testing.T) {
	now := time.Unix(1000, 0)
	p := NewSimulatedProvider(0, 0, 10, 90, 10).WithClock(func() time.Time { return now })

	first, err := p.GetLocation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.0, first.Latitude)
	assert.Equal(t, 0.0, first.Longitude)

	now = now.Add(100 * time.Second)
	second, err := p.GetLocation(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0, second.Latitude, 1e-9)
	// 1000 m east on the equator is roughly 0.009 degrees.
	assert.InDelta(t, 0.008993, second.Longitude, 1e-5)
	assert.Equal(t, 10.0, second.Altitude)
}

func TestStaticProvider_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewStaticProvider(1, 2, 3).GetLocation(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDeviceSensorProvider_ParsesGGA(t *testing.T) {
	stream := strings.Join([]string{
		"garbage,partial",
		"$GPGGA,123519,4807.038,N,01131.000,E,0,08,0.9,545.4,M,46.9,M,,*46",
		"$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47",
	}, "\r\n") + "\r\n"

	p := NewReaderSensorProvider(io.NopCloser(strings.NewReader(stream)))
	defer p.Close()

	loc, err := p.GetLocation(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 48.1173, loc.Latitude, 1e-6)
	assert.InDelta(t, 11.516666, loc.Longitude, 1e-6)
	assert.InDelta(t, 592.3, loc.Altitude, 1e-9)
	assert.InDelta(t, 0.9, loc.Accuracy, 1e-9)
}

func TestDeviceSensorProvider_NoFix(t *testing.T) {
	stream := "$GPGGA,123519,4807.038,N,01131.000,E,0,08,0.9,545.4,M,46.9,M,,*46\r\n"
	p := NewReaderSensorProvider(io.NopCloser(strings.NewReader(stream)))

	_, err := p.GetLocation(context.Background())
	assert.EqualError(t, err, "no valid GPS data found")
}

func TestParseNmcliAccessPoints(t *testing.T) {
	out := "AA\\:BB\\:CC\\:DD\\:EE\\:FF:72\n" +
		"11\\:22\\:33\\:44\\:55\\:66:40\n" +
		"not-a-mac:50\n" +
		"AA\\:BB\\:CC\\:DD\\:EE\\:01:weak\n"

	aps, err := parseNmcliAccessPoints(out)
	require.NoError(t, err)
	require.Len(t, aps, 2)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", aps[0].MACAddress)
	assert.Equal(t, 72.0, aps[0].SignalStrength)
	assert.Equal(t, "11:22:33:44:55:66", aps[1].MACAddress)
}

func TestParseMmcliCellTower(t *testing.T) {
	out := "modem.3gpp.imei : 490154203237518\n" +
		"modem.3gpp.mcc : 262\n" +
		"modem.3gpp.mnc : 1\n" +
		"modem.3gpp.lac : 1A2B\n" +
		"modem.3gpp.cid : 00FF\n"

	tower, err := parseMmcliCellTower(out)
	require.NoError(t, err)
	assert.Equal(t, 262, tower.MobileCountryCode)
	assert.Equal(t, 1, tower.MobileNetworkCode)
	assert.Equal(t, 0x1A2B, tower.LocationAreaCode)
	assert.Equal(t, 0xFF, tower.CellID)

	_, err = parseMmcliCellTower("modem.3gpp.mcc : 262\n")
	assert.EqualError(t, err, "incomplete cell tower data")
}

func TestIsValidMAC(t *testing.T) {
	assert.True(t, isValidMAC("00:14:22:01:23:45"))
	assert.True(t, isValidMAC("ff:ff:ff:ff:ff:ff"))
	assert.False(t, isValidMAC("00:14:22:01:23"))
	assert.False(t, isValidMAC("00:14:22:01:23:4G"))
}

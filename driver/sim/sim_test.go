package sim

import (
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/arloliu/go-rclink/driver"
	"github.com/stretchr/testify/require"
)

func TestActuator(t *testing.T) {
	require := require.New(t)

	a := NewActuator()
	_, ok := a.Output(0)
	require.False(ok)

	var hooked []int
	var mu sync.Mutex
	a.OnWrite(func(ch int, _ Output) {
		mu.Lock()
		defer mu.Unlock()
		hooked = append(hooked, ch)
	})

	require.NoError(a.SetPWM(0, 307))
	require.NoError(a.SetDigital(1, true))
	require.Error(a.SetPWM(16, 0))

	out, ok := a.Output(0)
	require.True(ok)
	require.Equal(Output{Kind: OutputPWM, Ticks: 307}, out)

	require.Equal(map[int]Output{
		0: {Kind: OutputPWM, Ticks: 307},
		1: {Kind: OutputDigital, On: true},
	}, a.Outputs())
	require.Equal(uint64(2), a.Writes())
	require.Equal([]int{0, 1}, hooked)
}

func TestActuator_Concurrent(t *testing.T) {
	a := NewActuator()

	var wg sync.WaitGroup
	for ch := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				_ = a.SetPWM(ch, uint16(i))
			}
		}()
	}
	wg.Wait()

	require.Equal(t, uint64(1600), a.Writes())
	require.Len(t, a.Outputs(), 16)
}

func TestSensor(t *testing.T) {
	s := NewSensor(7.4)

	v, err := s.ReadVolts()
	require.NoError(t, err)
	require.InDelta(t, 7.4, v, 1e-9)

	errADC := errors.New("adc not responding")
	s.Set(0, errADC)
	_, err = s.ReadVolts()
	require.ErrorIs(t, err, errADC)
	require.Equal(t, 2, s.Reads())
}

func TestInputDevice(t *testing.T) {
	require := require.New(t)

	d := NewInputDevice(4)
	require.True(d.Inject(driver.EventAbs, 1, -128))
	require.True(d.Press(304))

	ev, err := d.ReadEvent()
	require.NoError(err)
	require.Equal(driver.EventAbs, ev.Type)
	require.Equal(uint16(1), ev.Code)
	require.Equal(int32(-128), ev.Value)

	ev, err = d.ReadEvent()
	require.NoError(err)
	require.Equal(int32(1), ev.Value)
	ev, err = d.ReadEvent()
	require.NoError(err)
	require.Equal(int32(0), ev.Value)

	// buffer full
	for range 4 {
		require.True(d.Inject(driver.EventKey, 1, 1))
	}
	require.False(d.Inject(driver.EventKey, 1, 1))

	require.NoError(d.Close())
	require.NoError(d.Close())
	_, err = d.ReadEvent()
	require.ErrorIs(err, io.EOF)
}

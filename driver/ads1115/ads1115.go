// Package ads1115 reads the TI ADS1115 16-bit analog-to-digital converter.
package ads1115

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/arloliu/go-rclink/driver"
	"github.com/arloliu/go-rclink/driver/i2c"
)

// DefaultAddr is the bus address with the ADDR pin tied to GND.
const DefaultAddr uint16 = 0x48

const (
	regConversion = 0x00
	regConfig     = 0x01

	cfgOSSingle      = 0x8000
	cfgContinuous    = 0x0000
	cfgCompDisable   = 0x0003
	cfgMuxSingleBase = 0x4000
)

var gainBits = map[float64]uint16{
	6.144: 0x0000,
	4.096: 0x0200,
	2.048: 0x0400,
	1.024: 0x0600,
	0.512: 0x0800,
	0.256: 0x0A00,
}

var rateBits = map[int]uint16{
	8:   0x0000,
	16:  0x0020,
	32:  0x0040,
	64:  0x0060,
	128: 0x0080,
	250: 0x00A0,
	475: 0x00C0,
	860: 0x00E0,
}

// Config selects the input and scaling.
type Config struct {
	// Channel is the single-ended input, 0 to 3.
	Channel int
	// FullScale is the programmable gain range in volts, one of 6.144, 4.096, 2.048, 1.024,
	// 0.512 and 0.256.
	FullScale float64
	// SamplesPerSecond is the data rate, one of 8, 16, 32, 64, 128, 250, 475 and 860.
	SamplesPerSecond int
	// Divider is the ratio of the external voltage divider in front of the input.
	Divider float64
}

// DefaultConfig returns input 0 at ±2.048 V, 32 samples per second, behind a 5.69:1 divider.
func DefaultConfig() Config {
	return Config{Channel: 0, FullScale: 2.048, SamplesPerSecond: 32, Divider: 5.69}
}

func (c Config) register() (uint16, error) {
	if c.Channel < 0 || c.Channel > 3 {
		return 0, fmt.Errorf("ads1115: invalid channel %d", c.Channel)
	}
	gain, ok := gainBits[c.FullScale]
	if !ok {
		return 0, fmt.Errorf("ads1115: unsupported full scale %v", c.FullScale)
	}
	rate, ok := rateBits[c.SamplesPerSecond]
	if !ok {
		return 0, fmt.Errorf("ads1115: unsupported data rate %d", c.SamplesPerSecond)
	}
	if c.Divider <= 0 {
		return 0, fmt.Errorf("ads1115: invalid divider %v", c.Divider)
	}

	mux := uint16(cfgMuxSingleBase + c.Channel<<12)

	return cfgOSSingle | mux | gain | cfgContinuous | rate | cfgCompDisable, nil
}

// Device is an ADS1115 in continuous conversion mode. It implements driver.Sensor.
type Device struct {
	mu   sync.Mutex
	bus  i2c.Bus
	addr uint16
	cfg  Config
}

var _ driver.Sensor = (*Device)(nil)

// New configures the converter and waits for the first conversion.
func New(bus i2c.Bus, addr uint16, cfg Config) (*Device, error) {
	reg, err := cfg.register()
	if err != nil {
		return nil, err
	}

	if err := bus.WriteReg(addr, regConfig, []byte{byte(reg >> 8), byte(reg)}); err != nil {
		return nil, fmt.Errorf("ads1115: write config: %w", err)
	}
	time.Sleep(time.Second/time.Duration(cfg.SamplesPerSecond) + 100*time.Microsecond)

	return &Device{bus: bus, addr: addr, cfg: cfg}, nil
}

// ReadRaw returns the last conversion result.
func (d *Device) ReadRaw() (int16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var buf [2]byte
	if err := d.bus.ReadReg(d.addr, regConversion, buf[:]); err != nil {
		return 0, fmt.Errorf("ads1115: read conversion: %w", err)
	}

	return int16(uint16(buf[0])<<8 | uint16(buf[1])), nil
}

// ReadVolts implements driver.Sensor. The result is the voltage in front of the divider,
// rounded to 10 mV.
func (d *Device) ReadVolts() (float64, error) {
	raw, err := d.ReadRaw()
	if err != nil {
		return 0, err
	}

	return Volts(raw, d.cfg.FullScale, d.cfg.Divider), nil
}

// Volts converts a conversion result to volts, rounded to 10 mV.
func Volts(raw int16, fullScale float64, divider float64) float64 {
	v := float64(raw) * fullScale / math.MaxInt16 * divider
	return math.Round(v*100) / 100
}

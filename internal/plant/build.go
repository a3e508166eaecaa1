package plant

import (
	"fmt"

	"github.com/roach88/meltshop/internal/clock"
	"github.com/roach88/meltshop/internal/config"
	"github.com/roach88/meltshop/internal/sensor"
)

// SensorFactory creates the sensor behind one configured machine sensor.
type SensorFactory func(machine string, s config.Sensor) sensor.Sensor

// StoredSensors returns a factory reading every sensor from r.
func StoredSensors(r sensor.Reader) SensorFactory {
	return func(machine string, s config.Sensor) sensor.Sensor {
		return sensor.NewStored(r, s.SensorTopic(machine), s.DisplayName(), s.Unit)
	}
}

// MemorySensors returns a factory creating empty in-memory sensors.
func MemorySensors() SensorFactory {
	return func(_ string, s config.Sensor) sensor.Sensor {
		return sensor.NewMemory(s.DisplayName(), s.Unit)
	}
}

// Build creates a plant from a validated configuration. opts are applied
// after the options derived from cfg, so callers can override them.
func Build(cfg *config.Plant, clk clock.Clock, sensors SensorFactory, opts ...Option) (*Plant, error) {
	interval, err := cfg.MonitorInterval()
	if err != nil {
		return nil, fmt.Errorf("build plant %q: %w", cfg.Name, err)
	}

	var derived []Option
	if interval > 0 {
		derived = append(derived, WithInterval(interval))
	}
	if cfg.Rules.DisableThresholds {
		derived = append(derived, WithoutThresholds())
	}
	if len(cfg.Rules.AlertLabels) > 0 {
		derived = append(derived, WithAlertLabels(cfg.Rules.AlertLabels...))
	}

	p := New(cfg.Name, clk, append(derived, opts...)...)
	for _, sc := range cfg.Shops {
		shop := p.AddShop(sc.Name)
		for _, mc := range sc.Machines {
			set := make(map[string]sensor.Sensor, len(mc.Sensors))
			for _, s := range mc.Sensors {
				set[s.Key] = sensors(mc.Name, s)
			}
			if _, err := shop.AddMachine(mc.Name, mc.Initial, set); err != nil {
				return nil, fmt.Errorf("build plant %q: %w", cfg.Name, err)
			}
		}
	}
	return p, nil
}

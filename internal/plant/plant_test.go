package plant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/meltshop/internal/config"
	"github.com/roach88/meltshop/internal/sensor"
	"github.com/roach88/meltshop/internal/testutil"
)

func testConfig() *config.Plant {
	return &config.Plant{
		Name: "north",
		Shops: []config.Shop{{
			Name: "melt",
			Machines: []config.Machine{
				{Name: "furnace-1", Initial: 100, Sensors: []config.Sensor{
					{Key: "voltage", Name: "Voltage", Unit: "V"},
					{Key: "cosphi", Name: "Power factor", Unit: "cos(φ)"},
				}},
				{Name: "ladle-1"},
			},
		}},
		Rules: config.Rules{AlertLabels: []string{"critical"}},
	}
}

func TestBuild_CreatesHierarchy(t *testing.T) {
	clk := testutil.NewManualClock(time.Time{})
	p, err := Build(testConfig(), clk, MemorySensors())
	require.NoError(t, err)

	assert.Equal(t, "north", p.Name())
	require.Len(t, p.Shops(), 1)
	assert.Equal(t, "melt", p.Shops()[0].Name())
	require.Len(t, p.Machines(), 2)

	furnace, ok := p.Machine("furnace-1")
	require.True(t, ok)
	assert.Equal(t, 100.0, furnace.Weight())
	assert.Equal(t, []string{"cosphi", "voltage"}, furnace.SensorKeys())

	_, ok = p.Machine("missing")
	assert.False(t, ok)
	assert.Len(t, p.Monitors(), 2)
	assert.Equal(t, 2, p.Rules().Len())
}

func TestBuild_DisableThresholds(t *testing.T) {
	cfg := testConfig()
	cfg.Rules = config.Rules{DisableThresholds: true}

	p, err := Build(cfg, testutil.NewManualClock(time.Time{}), MemorySensors())
	require.NoError(t, err)
	assert.Equal(t, 0, p.Rules().Len())
}

func TestBuild_BadInterval(t *testing.T) {
	cfg := testConfig()
	cfg.Interval = "often"

	_, err := Build(cfg, testutil.NewManualClock(time.Time{}), MemorySensors())
	require.Error(t, err)
}

func TestBuild_DuplicateMachine(t *testing.T) {
	cfg := testConfig()
	cfg.Shops = append(cfg.Shops, config.Shop{Name: "cast", Machines: []config.Machine{{Name: "ladle-1"}}})

	_, err := Build(cfg, testutil.NewManualClock(time.Time{}), MemorySensors())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ladle-1")
}

func TestPlant_LabelledEventRaisesAlert(t *testing.T) {
	clk := testutil.NewManualClock(time.Time{})
	p, err := Build(testConfig(), clk, MemorySensors())
	require.NoError(t, err)

	ev := p.Events().Create(time.Time{}, map[string]any{"machine": "furnace-1", "message": "Tap hole leak"}, []string{"critical"})

	furnace, _ := p.Machine("furnace-1")
	got := furnace.Alerts()
	require.Len(t, got, 1)
	assert.Equal(t, "Tap hole leak", got[0].Message)
	require.NotNil(t, got[0].Source)
	assert.Equal(t, ev.ID(), got[0].Source.ID())
}

func TestPlant_MonitorTickUsesSharedRules(t *testing.T) {
	clk := testutil.NewManualClock(time.Time{})
	p := New("south", clk)
	voltage := sensor.NewMemory("Voltage", "V")
	voltage.Record(clk.Now(), 415)

	m, err := p.AddShop("melt").AddMachine("furnace-2", 0, map[string]sensor.Sensor{"voltage": voltage})
	require.NoError(t, err)

	p.Monitors()[0].Tick(context.Background())

	got := m.Alerts()
	require.Len(t, got, 1)
	assert.Equal(t, "Critical high voltage: 415.0V", got[0].Message)
}

func TestPlant_InitIsIdempotent(t *testing.T) {
	clk := testutil.NewManualClock(time.Time{})
	p := New("south", clk, WithInterval(time.Hour))
	_, err := p.AddShop("melt").AddMachine("furnace-2", 0, nil)
	require.NoError(t, err)

	ctx := context.Background()
	p.Init(ctx)
	p.Init(ctx)
	p.Stop()
	p.Stop()

	select {
	case <-p.Monitors()[0].Done():
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop")
	}
}

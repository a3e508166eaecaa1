package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func assertNorthPlant(t *testing.T, p *Plant) {
	t.Helper()
	assert.Equal(t, "north", p.Name)
	d, err := p.MonitorInterval()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, d)

	machines := p.Machines()
	require.Len(t, machines, 2)
	assert.Equal(t, "furnace-1", machines[0].Name)
	assert.Equal(t, 100.0, machines[0].Initial)
	require.Len(t, machines[0].Sensors, 2)
	assert.Equal(t, "furnace-1/voltage", machines[0].Sensors[0].SensorTopic("furnace-1"))
	assert.Equal(t, "scada/furnace-1/cosphi", machines[0].Sensors[1].SensorTopic("furnace-1"))
	assert.Equal(t, "Power factor", machines[0].Sensors[1].DisplayName())
	assert.Equal(t, "ladle-1", machines[1].Name)
	assert.Equal(t, []string{"critical"}, p.Rules.AlertLabels)
	assert.False(t, p.Rules.DisableThresholds)
}

func TestLoad_YAML(t *testing.T) {
	p, err := Load("testdata/plant.yaml")
	require.NoError(t, err)
	assertNorthPlant(t, p)
}

func TestLoad_CUE(t *testing.T) {
	p, err := Load("testdata/plant.cue")
	require.NoError(t, err)
	assertNorthPlant(t, p)
}

func TestLoad_CUETopLevel(t *testing.T) {
	path := writeFile(t, "plant.cue", `
name: "south"
shops: [{name: "s", machines: [{name: "m"}]}]
`)

	p, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "south", p.Name)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))

	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeRead, ce.Code)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDecode_UnsupportedExtension(t *testing.T) {
	_, err := Decode([]byte("{}"), "plant.toml")

	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeFormat, ce.Code)
}

func TestDecode_YAMLUnknownField(t *testing.T) {
	_, err := Decode([]byte("name: x\nfurnaces: []\n"), "plant.yaml")

	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeParse, ce.Code)
}

func TestDecode_CUEIncomplete(t *testing.T) {
	_, err := Decode([]byte(`name: string`), "plant.cue")

	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeParse, ce.Code)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		plant   Plant
		wantErr bool
		paths   []string
	}{
		{
			name:  "minimal",
			plant: Plant{Name: "p"},
		},
		{
			name:    "missing names",
			plant:   Plant{Shops: []Shop{{Machines: []Machine{{}}}}},
			wantErr: true,
			paths:   []string{"name", "shops[0].name", "shops[0].machines[0].name"},
		},
		{
			name: "duplicate machine across shops",
			plant: Plant{Name: "p", Shops: []Shop{
				{Name: "a", Machines: []Machine{{Name: "m"}}},
				{Name: "b", Machines: []Machine{{Name: "m"}}},
			}},
			wantErr: true,
			paths:   []string{"shops[1].machines[0].name"},
		},
		{
			name: "duplicate and empty sensor keys",
			plant: Plant{Name: "p", Shops: []Shop{{Name: "a", Machines: []Machine{{
				Name:    "m",
				Sensors: []Sensor{{Key: "voltage"}, {Key: "voltage"}, {}},
			}}}}},
			wantErr: true,
			paths:   []string{"shops[0].machines[0].sensors[1].key", "shops[0].machines[0].sensors[2].key"},
		},
		{
			name:    "bad interval",
			plant:   Plant{Name: "p", Interval: "soon"},
			wantErr: true,
			paths:   []string{"interval"},
		},
		{
			name:    "negative interval",
			plant:   Plant{Name: "p", Interval: "-1s"},
			wantErr: true,
			paths:   []string{"interval"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.plant.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsInvalid(err))
			for _, p := range tt.paths {
				assert.Contains(t, err.Error(), p)
			}
		})
	}
}

func TestLoad_InvalidPlantRejected(t *testing.T) {
	path := writeFile(t, "plant.yaml", "name: ''\n")

	_, err := Load(path)

	assert.True(t, IsInvalid(err))
}

func TestIsInvalid_OtherErrors(t *testing.T) {
	assert.False(t, IsInvalid(nil))
	assert.False(t, IsInvalid(&Error{Code: ErrCodeRead}))
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("MELTSHOP_DB", "/tmp/plant.db")
	t.Setenv("MELTSHOP_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("MELTSHOP_MONITOR_INTERVAL", "250ms")

	e, err := LoadEnv()

	require.NoError(t, err)
	assert.Equal(t, "/tmp/plant.db", e.Database)
	assert.Equal(t, ":8080", e.HTTPAddr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, e.KafkaBrokers)
	assert.Equal(t, "meltshop.notifications", e.KafkaTopic)
	assert.Equal(t, 250*time.Millisecond, e.MonitorInterval)
}

func TestLoadEnv_BadDuration(t *testing.T) {
	t.Setenv("MELTSHOP_MONITOR_INTERVAL", "often")

	_, err := LoadEnv()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env")
}

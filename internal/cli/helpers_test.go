package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testPlant = `
name: north
interval: 1s
shops:
  - name: melt-a
    machines:
      - name: furnace-1
        initial: 100
        sensors:
          - key: voltage
            unit: V
          - key: cosphi
            topic: plant/f1/pf
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

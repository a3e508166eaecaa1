package cli

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/meltshop/internal/config"
	"github.com/roach88/meltshop/internal/store"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	Database string
	Plant    string
}

// IngestResult reports how many samples were written.
type IngestResult struct {
	Samples int      `json:"samples"`
	Topics  []string `json:"topics"`
}

func (r IngestResult) String() string {
	return fmt.Sprintf("Ingested %d sample(s) into %d topic(s)", r.Samples, len(r.Topics))
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest <csv-file|->",
		Short: "Write sensor samples into the metrics database",
		Long: `Read sensor samples from CSV and store them under the topics the plant
file assigns to each sensor. Rows are

  machine,sensor,timestamp,value

with RFC 3339 timestamps. A header row is skipped. Re-ingesting a sample
with the same topic and millisecond is a no-op. Input is read to EOF and
the batch is written in one transaction: either every row lands or none
does. Use "-" to read a finite batch from stdin.

Example:
  meltshop ingest --plant ./plant.yaml --db ./meltshop.db samples.csv
  cat samples.csv | meltshop ingest --plant ./plant.yaml -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite metrics database (default $MELTSHOP_DB)")
	cmd.Flags().StringVar(&opts.Plant, "plant", "", "plant file resolving sensor topics (required)")
	_ = cmd.MarkFlagRequired("plant")

	return cmd
}

func runIngest(opts *IngestOptions, input string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := config.Load(opts.Plant)
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load plant", err)
	}

	dbPath := opts.Database
	if dbPath == "" {
		env, err := config.LoadEnv()
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid environment", err)
		}
		dbPath = env.Database
	}

	var r io.Reader = cmd.InOrStdin()
	if input != "-" {
		f, err := os.Open(input)
		if err != nil {
			return WrapExitError(ExitCommandError, "cannot open input", err)
		}
		defer f.Close()
		r = f
	}

	ms, err := parseSamples(r, topicResolver(cfg))
	if err != nil {
		_ = formatter.Error(ErrCodeIngest, err.Error(), nil)
		return WrapExitError(ExitFailure, "invalid samples", err)
	}

	st, err := store.Open(dbPath)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if err := st.WriteMeasurements(cmd.Context(), ms); err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to write samples", err)
	}

	result := IngestResult{Samples: len(ms), Topics: []string{}}
	seen := map[string]bool{}
	for _, m := range ms {
		if !seen[m.Topic] {
			seen[m.Topic] = true
			result.Topics = append(result.Topics, m.Topic)
		}
	}
	formatter.VerboseLog("Wrote %d sample(s) to %s", len(ms), dbPath)
	return formatter.Success(result)
}

// topicResolver maps (machine, sensor key) to the configured topic.
func topicResolver(cfg *config.Plant) func(machine, key string) (string, bool) {
	topics := map[[2]string]string{}
	for _, m := range cfg.Machines() {
		for _, s := range m.Sensors {
			topics[[2]string{m.Name, s.Key}] = s.SensorTopic(m.Name)
		}
	}
	return func(machine, key string) (string, bool) {
		t, ok := topics[[2]string{machine, key}]
		return t, ok
	}
}

func parseSamples(r io.Reader, resolve func(machine, key string) (string, bool)) ([]store.Measurement, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 4
	cr.TrimLeadingSpace = true

	var out []store.Measurement
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read samples: %w", err)
		}
		if line == 1 && strings.EqualFold(rec[3], "value") {
			continue
		}

		topic, ok := resolve(rec[0], rec[1])
		if !ok {
			return nil, fmt.Errorf("line %d: unknown sensor %s/%s", line, rec[0], rec[1])
		}
		ts, err := time.Parse(time.RFC3339Nano, rec[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: timestamp: %w", line, err)
		}
		v, err := strconv.ParseFloat(rec[3], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: value: %w", line, err)
		}
		out = append(out, store.Measurement{Topic: topic, Timestamp: ts, Value: v})
	}
	return out, nil
}

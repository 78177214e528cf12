package macro

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethpandaops/queryoor/pkg/benchmark"
	"github.com/ethpandaops/queryoor/pkg/config"
	"github.com/ethpandaops/queryoor/pkg/datasource"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDriver struct {
	names map[string]bool
	calls []string
	err   error
}

func (d *fakeDriver) CanExecute(name string) bool {
	return d.names[name]
}

func (d *fakeDriver) Run(_ context.Context, name string, _ *benchmark.Benchmark, _ datasource.Conn) error {
	d.calls = append(d.calls, name)

	return d.err
}

func TestService_RunMacros(t *testing.T) {
	tests := []struct {
		name      string
		drivers   []*fakeDriver
		macros    []string
		wantErr   error
		wantCalls []string
	}{
		{
			name:    "empty list is a no-op",
			drivers: []*fakeDriver{{names: map[string]bool{"a": true}}},
		},
		{
			name:      "runs in order",
			drivers:   []*fakeDriver{{names: map[string]bool{"a": true, "b": true}}},
			macros:    []string{"b", "a"},
			wantCalls: []string{"b", "a"},
		},
		{
			name:    "no driver",
			drivers: []*fakeDriver{{names: map[string]bool{"a": true}}},
			macros:  []string{"c"},
			wantErr: ErrNoDriver,
		},
		{
			name: "ambiguous driver",
			drivers: []*fakeDriver{
				{names: map[string]bool{"a": true}},
				{names: map[string]bool{"a": true}},
			},
			macros:  []string{"a"},
			wantErr: ErrAmbiguousDriver,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drivers := make([]Driver, 0, len(tt.drivers))
			for _, d := range tt.drivers {
				drivers = append(drivers, d)
			}

			svc := NewService(logrus.New(), drivers...)

			err := svc.RunMacros(context.Background(), tt.macros, nil, nil)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantCalls, tt.drivers[0].calls)
		})
	}
}

func TestService_StopsAtFirstFailure(t *testing.T) {
	failing := &fakeDriver{names: map[string]bool{"a": true, "b": true}, err: errors.New("boom")}
	svc := NewService(logrus.New(), failing)

	err := svc.RunMacros(context.Background(), []string{"a", "b"}, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `macro "a"`)
	assert.Equal(t, []string{"a"}, failing.calls)
}

func TestShellDriver_Run(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.txt")

	driver := NewShellDriver(logrus.New(), map[string]config.MacroConfig{
		"write":  {Command: `echo "$schema-$BENCHMARK_NAME" > "$out"`},
		"fail":   {Command: "echo oops >&2; exit 3"},
		"sql-ok": {SQL: "SELECT 1"},
	})

	assert.True(t, driver.CanExecute("write"))
	assert.False(t, driver.CanExecute("sql-ok"))
	assert.False(t, driver.CanExecute("missing"))

	b := &benchmark.Benchmark{
		Name:      "tpch",
		Variables: map[string]string{"schema": "sf1", "out": out},
	}

	require.NoError(t, driver.Run(context.Background(), "write", b, nil))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "sf1-tpch", strings.TrimSpace(string(data)))

	err = driver.Run(context.Background(), "fail", b, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oops")
}

func TestShellDriver_RunsBash(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.txt")

	driver := NewShellDriver(logrus.New(), map[string]config.MacroConfig{
		"bash-only": {Command: `if [[ "$schema" == sf* ]]; then echo "$BASH_VERSION" > "$out"; fi`},
	})

	b := &benchmark.Benchmark{
		Name:      "tpch",
		Variables: map[string]string{"schema": "sf1", "out": out},
	}

	require.NoError(t, driver.Run(context.Background(), "bash-only", b, nil))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(string(data)))
}

func TestQueryDriver_Run(t *testing.T) {
	provider := datasource.NewProvider(logrus.New(), map[string]config.DataSourceConfig{
		"local": {DatabaseConfig: config.DatabaseConfig{
			Driver: "sqlite",
			SQLite: config.SQLiteDatabaseConfig{Path: filepath.Join(t.TempDir(), "m.db")},
		}},
	})
	require.NoError(t, provider.Start(context.Background()))
	t.Cleanup(func() { _ = provider.Stop() })

	driver := NewQueryDriver(logrus.New(), map[string]config.MacroConfig{
		"setup":  {SQL: "CREATE TABLE t (id INTEGER); INSERT INTO t VALUES (1);"},
		"broken": {SQL: "SELECT * FROM nope"},
		"shell":  {Command: "true"},
	}, provider)

	assert.True(t, driver.CanExecute("setup"))
	assert.False(t, driver.CanExecute("shell"))

	b := &benchmark.Benchmark{Name: "tpch", DataSource: "local"}

	require.NoError(t, driver.Run(context.Background(), "setup", b, nil))

	conn, err := provider.Conn(context.Background(), "local")
	require.NoError(t, err)

	defer func() { _ = conn.Close() }()

	res, err := conn.Execute(context.Background(), "SELECT * FROM t")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsCount)

	require.Error(t, driver.Run(context.Background(), "broken", b, conn))
	require.Error(t, driver.Run(context.Background(), "setup", nil, nil))
}

package macro

import (
	"context"
	"fmt"

	"github.com/ethpandaops/queryoor/pkg/benchmark"
	"github.com/ethpandaops/queryoor/pkg/config"
	"github.com/ethpandaops/queryoor/pkg/datasource"
	"github.com/sirupsen/logrus"
)

// Compile-time interface check.
var _ Driver = (*QueryDriver)(nil)

// QueryDriver runs macros defined as SQL. Statements run on the caller's
// connection unless the macro names its own datasource.
type QueryDriver struct {
	log      logrus.FieldLogger
	defs     map[string]config.MacroConfig
	provider datasource.Provider
}

// NewQueryDriver creates a new QueryDriver.
func NewQueryDriver(
	log logrus.FieldLogger,
	defs map[string]config.MacroConfig,
	provider datasource.Provider,
) *QueryDriver {
	return &QueryDriver{
		log:      log.WithField("component", "query-macro"),
		defs:     defs,
		provider: provider,
	}
}

// CanExecute implements Driver.
func (d *QueryDriver) CanExecute(name string) bool {
	def, ok := d.defs[name]

	return ok && def.SQL != ""
}

// Run implements Driver.
func (d *QueryDriver) Run(
	ctx context.Context,
	name string,
	b *benchmark.Benchmark,
	conn datasource.Conn,
) error {
	def := d.defs[name]

	if def.DataSource != "" || conn == nil {
		dsName := def.DataSource
		if dsName == "" && b != nil {
			dsName = b.DataSource
		}

		if dsName == "" {
			return fmt.Errorf("no datasource for sql macro %q", name)
		}

		owned, err := d.provider.Conn(ctx, dsName)
		if err != nil {
			return err
		}
		defer func() { _ = owned.Close() }()

		conn = owned
	}

	for _, stmt := range datasource.SplitStatements(def.SQL) {
		res, err := conn.Execute(ctx, stmt)
		if err != nil {
			return fmt.Errorf("executing %q: %w", stmt, err)
		}

		d.log.WithFields(logrus.Fields{
			"macro": name,
			"rows":  res.RowsCount,
		}).Debug("Macro statement executed")
	}

	return nil
}

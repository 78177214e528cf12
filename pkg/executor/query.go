package executor

import (
	"context"
	"fmt"

	"github.com/ethpandaops/queryoor/pkg/benchmark"
	"github.com/ethpandaops/queryoor/pkg/datasource"
	"github.com/sirupsen/logrus"
)

// runUnit executes one execution on conn surrounded by its execution
// macros. Query errors become failed results; macro errors are returned.
func (e *executor) runUnit(
	ctx context.Context,
	p *phase,
	conn datasource.Conn,
	execution *benchmark.Execution,
) (*benchmark.ExecutionResult, error) {
	b := execution.Benchmark
	report := p.reportsUnits()

	if err := e.macros.RunMacros(ctx, b.BeforeExecutionMacros, b, conn); err != nil {
		return nil, fmt.Errorf("running before-execution macros for %s: %w", execution, err)
	}

	if report {
		e.reporter.ReportExecutionStarted(execution)
	}

	start := e.now()
	res, err := conn.Execute(ctx, execution.Query.Statement)
	end := e.now()

	var rows int64

	if err != nil {
		e.log.WithFields(logrus.Fields{
			"benchmark":   b.UniqueName,
			"query":       execution.Query.Name,
			"sequence_id": execution.SequenceID,
			"phase":       p.kind,
		}).WithError(err).Debug("Query execution failed")
	} else {
		rows = res.RowsCount
	}

	result := benchmark.NewExecutionResult(execution, start, end, rows, err)

	if report {
		if err := e.sync.AfterQuery(ctx, result); err != nil {
			return nil, fmt.Errorf("waiting after %s: %w", execution, err)
		}

		e.reporter.ReportExecutionFinished(result)
	}

	if err := e.macros.RunMacros(ctx, b.AfterExecutionMacros, b, conn); err != nil {
		return nil, fmt.Errorf("running after-execution macros for %s: %w", execution, err)
	}

	return result, nil
}

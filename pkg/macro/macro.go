package macro

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethpandaops/queryoor/pkg/benchmark"
	"github.com/ethpandaops/queryoor/pkg/datasource"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNoDriver is returned when no driver can execute a macro.
	ErrNoDriver = errors.New("no macro driver found")

	// ErrAmbiguousDriver is returned when more than one driver claims a macro.
	ErrAmbiguousDriver = errors.New("more than one macro driver found")
)

// Driver executes one kind of macro.
type Driver interface {
	// CanExecute reports whether the driver handles the named macro.
	CanExecute(name string) bool

	// Run executes the macro. The benchmark is nil for suite-level macros
	// and conn is nil when the caller holds no connection.
	Run(ctx context.Context, name string, b *benchmark.Benchmark, conn datasource.Conn) error
}

// Service runs named macros through the driver that claims them.
type Service interface {
	// RunMacros runs the macros in order and stops at the first failure.
	// An empty list is a no-op.
	RunMacros(
		ctx context.Context,
		names []string,
		b *benchmark.Benchmark,
		conn datasource.Conn,
	) error
}

// Compile-time interface check.
var _ Service = (*service)(nil)

type service struct {
	log     logrus.FieldLogger
	drivers []Driver
}

// NewService creates a new macro Service backed by the given drivers.
func NewService(log logrus.FieldLogger, drivers ...Driver) Service {
	return &service{
		log:     log.WithField("component", "macro"),
		drivers: drivers,
	}
}

// RunMacros implements Service.
func (s *service) RunMacros(
	ctx context.Context,
	names []string,
	b *benchmark.Benchmark,
	conn datasource.Conn,
) error {
	for _, name := range names {
		driver, err := s.driverFor(name)
		if err != nil {
			return err
		}

		log := s.log.WithField("macro", name)
		if b != nil {
			log = log.WithField("benchmark", b.UniqueName)
		}

		log.Debug("Running macro")

		if err := driver.Run(ctx, name, b, conn); err != nil {
			return fmt.Errorf("macro %q: %w", name, err)
		}
	}

	return nil
}

func (s *service) driverFor(name string) (Driver, error) {
	var matched []Driver

	for _, d := range s.drivers {
		if d.CanExecute(name) {
			matched = append(matched, d)
		}
	}

	switch len(matched) {
	case 0:
		return nil, fmt.Errorf("%w: %q", ErrNoDriver, name)
	case 1:
		return matched[0], nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrAmbiguousDriver, name)
	}
}

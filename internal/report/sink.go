// Package report persists per-round simulation results.
package report

import (
	"context"
	"errors"

	"github.com/signalsfoundry/wsn-simulator/model"
)

// Sink receives the statistics and node snapshots of every completed round.
type Sink interface {
	WriteRound(ctx context.Context, stats model.RoundStats, nodes []model.NodeSnapshot) error
	Close() error
}

// Multi fans rounds out to several sinks. Every sink is attempted; errors
// are joined.
type Multi []Sink

func (m Multi) WriteRound(ctx context.Context, stats model.RoundStats, nodes []model.NodeSnapshot) error {
	var errs []error
	for _, s := range m {
		if err := s.WriteRound(ctx, stats, nodes); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

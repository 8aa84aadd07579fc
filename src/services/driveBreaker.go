package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/enzococca/mekan-admin/src/logging"
	"github.com/enzococca/mekan-admin/src/metrics"
	"github.com/enzococca/mekan-admin/src/utils"
	"github.com/sony/gobreaker/v2"
)

const (
	driveBreakerName     = "google_drive"
	driveBreakerFailures = 5
)

type driveDownload struct {
	body io.ReadCloser
	file *utils.DriveFile
}

// BreakerFetcher stops calling Drive after consecutive failures and lets a
// single probe through once the cool-down has passed.
type BreakerFetcher struct {
	next FileFetcher
	cb   *gobreaker.CircuitBreaker[driveDownload]
}

func NewBreakerFetcher(next FileFetcher, cooldown time.Duration) *BreakerFetcher {
	metrics.CircuitBreakerState.WithLabelValues(driveBreakerName).Set(float64(gobreaker.StateClosed))

	settings := gobreaker.Settings{
		Name:        driveBreakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= driveBreakerFailures
		},
		// Missing files and cancelled requests say nothing about Drive's health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, utils.ErrDriveFileNotFound) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}
	return &BreakerFetcher{next: next, cb: gobreaker.NewCircuitBreaker[driveDownload](settings)}
}

func (b *BreakerFetcher) Download(ctx context.Context, fileID string) (io.ReadCloser, *utils.DriveFile, error) {
	res, err := b.cb.Execute(func() (driveDownload, error) {
		body, file, err := b.next.Download(ctx, fileID)
		return driveDownload{body: body, file: file}, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, nil, fmt.Errorf("google drive: %w: %v", ErrUnavailable, err)
	}
	if err != nil {
		return nil, nil, err
	}
	return res.body, res.file, nil
}

// State reports the breaker state, mainly for tests and health output.
func (b *BreakerFetcher) State() gobreaker.State {
	return b.cb.State()
}

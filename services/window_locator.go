package services

import (
	"context"
	"fmt"
	"time"

	"github.com/isir-tracker/isir-backend/models"
	"github.com/isir-tracker/isir-backend/shared"
	"github.com/sirupsen/logrus"
)

// LocateStatus tells how the locator arrived at its start id.
type LocateStatus int

const (
	// LocateFailed means the registry could not be queried; StartID and LastID are zero.
	LocateFailed LocateStatus = iota
	// Located means a probe batch began at or before the target.
	Located
	// LocateFallback means probing ran out without finding the target and a fixed lookback was used.
	LocateFallback
)

func (s LocateStatus) String() string {
	switch s {
	case Located:
		return "located"
	case LocateFallback:
		return "fallback"
	default:
		return "failed"
	}
}

// LocateResult is the locator outcome. When Status is LocateFailed, Cause holds the reason.
type LocateResult struct {
	Status  LocateStatus
	StartID models.SequenceID
	LastID  models.SequenceID
	Probes  int
	Cause   error
}

// Failed reports whether the registry was unreachable.
func (r LocateResult) Failed() bool {
	return r.Status == LocateFailed
}

// WindowLocator finds a sequence id at or before which a target instant begins by
// probing backward from the registry tip in fixed strides.
type WindowLocator struct {
	client        RegistryClient
	stride        uint64
	lookbackUnit  uint64
	lookbackUnits uint64
	logger        *logrus.Entry
}

// NewWindowLocator creates a locator using the scanner tuning from config.
func NewWindowLocator(client RegistryClient, config shared.ScannerConfig) *WindowLocator {
	defaults := shared.NewDefaultUnifiedConfiguration().Scanner
	if config.ProbeStride == 0 {
		config.ProbeStride = defaults.ProbeStride
	}
	if config.LookbackUnit == 0 {
		config.LookbackUnit = defaults.LookbackUnit
	}
	if config.LookbackUnits == 0 {
		config.LookbackUnits = defaults.LookbackUnits
	}
	return &WindowLocator{
		client:        client,
		stride:        config.ProbeStride,
		lookbackUnit:  config.LookbackUnit,
		lookbackUnits: config.LookbackUnits,
		logger:        logrus.WithField("component", "WindowLocator"),
	}
}

// Locate never returns an error; failures are reported through LocateResult.Status.
// The start id is a coarse bound and the scanner filters out-of-window records itself.
func (l *WindowLocator) Locate(ctx context.Context, target time.Time) (result LocateResult) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.WithField("panic", r).Error("Window locator panicked")
			result = LocateResult{Status: LocateFailed, Cause: fmt.Errorf("window locator panic: %v", r)}
		}
	}()

	target = NormalizeTimestamp(target)

	lastID, err := l.client.LatestSequenceID(ctx)
	if err != nil {
		l.logger.WithError(err).Warn("Could not read latest sequence id")
		return LocateResult{Status: LocateFailed, Cause: err}
	}

	probes := 0
	checkID := uint64(lastID)
	for checkID > l.stride {
		probeID := models.SequenceID(checkID - l.stride)
		probes++

		batch, err := l.client.BatchAt(ctx, probeID)
		if err != nil {
			l.logger.WithError(err).WithField("probe_id", probeID).Warn("Probe batch failed")
			return LocateResult{Status: LocateFailed, Probes: probes, Cause: err}
		}
		if len(batch) == 0 {
			break
		}

		first := NormalizeTimestamp(batch[0].PublishedAt)
		l.logger.WithFields(logrus.Fields{
			"probe_id":    probeID,
			"first_event": first.Format(models.DisplayTimeLayout),
			"target":      target.Format(models.DisplayTimeLayout),
		}).Debug("Probed registry")

		if !first.After(target) {
			return LocateResult{Status: Located, StartID: probeID, LastID: lastID, Probes: probes}
		}
		checkID -= l.stride
	}

	return LocateResult{
		Status:  LocateFallback,
		StartID: l.fallbackStart(lastID),
		LastID:  lastID,
		Probes:  probes,
	}
}

// fallbackStart is lastID minus the fixed lookback, saturating at zero.
func (l *WindowLocator) fallbackStart(lastID models.SequenceID) models.SequenceID {
	lookback := l.lookbackUnits * l.lookbackUnit
	if uint64(lastID) <= lookback {
		return 0
	}
	return lastID - models.SequenceID(lookback)
}

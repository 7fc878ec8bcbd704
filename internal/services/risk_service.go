package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/riskgate/internal/config"
	"github.com/BradenHooton/riskgate/internal/models"
	pkglogger "github.com/BradenHooton/riskgate/pkg/logger"
)

// RiskInput is the current login context evaluated against the ledger
type RiskInput struct {
	Email             string
	IPAddress         string
	DeviceFingerprint string
	HomeRegion        string // account's home-region marker, empty uses the configured default
	ExcludeAttemptID  string // attempt recorded by the login being evaluated
}

// RiskService derives anomaly flags from the attempt ledger
type RiskService struct {
	ledger LedgerReader
	cfg    config.RiskConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewRiskService creates a new RiskService
func NewRiskService(ledger LedgerReader, cfg config.RiskConfig, logger *slog.Logger) *RiskService {
	return &RiskService{
		ledger: ledger,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Evaluate computes anomaly flags from a fresh ledger snapshot. It never
// mutates state, so evaluating twice against the same ledger gives the same flags.
func (s *RiskService) Evaluate(ctx context.Context, in RiskInput) (models.AnomalyFlags, error) {
	history, err := s.ledger.History(ctx, in.Email)
	if err != nil {
		return models.AnomalyFlags{}, err
	}

	flags := s.evaluate(history, in, s.now())

	if flags.Count() > 0 {
		s.logger.Info("login anomalies detected",
			slog.String("email", pkglogger.SanitizedEmail(in.Email)),
			slog.Any("flags", flags.Names()))
	}

	return flags, nil
}

func (s *RiskService) evaluate(history []models.LoginAttempt, in RiskInput, now time.Time) models.AnomalyFlags {
	homeRegion := in.HomeRegion
	if homeRegion == "" {
		homeRegion = s.cfg.DefaultHomeRegion
	}

	failedSince := now.Add(-s.cfg.FailedAttemptWindow)
	rapidSince := now.Add(-s.cfg.RapidAttemptWindow)
	locationSince := now.Add(-s.cfg.LocationWindow)

	successIPs := make(map[string]struct{})
	var seenDevice, homeMatched bool
	var recentFailures, recentAttempts, recentSuccesses int

	for _, a := range history {
		if in.ExcludeAttemptID != "" && a.ID == in.ExcludeAttemptID {
			continue
		}

		if a.DeviceFingerprint == in.DeviceFingerprint {
			seenDevice = true
		}
		if a.Success {
			successIPs[a.IPAddress] = struct{}{}
		}
		if !a.Success && !a.Timestamp.Before(failedSince) {
			recentFailures++
		}
		if !a.Timestamp.Before(rapidSince) {
			recentAttempts++
		}
		if a.Success && !a.Timestamp.Before(locationSince) {
			recentSuccesses++
			if matchesRegion(a.Location, homeRegion) {
				homeMatched = true
			}
		}
	}

	_, knownIP := successIPs[in.IPAddress]

	return models.AnomalyFlags{
		NewDevice:              !seenDevice,
		SuspiciousIP:           len(successIPs) > 0 && !knownIP,
		MultipleFailedAttempts: recentFailures >= s.cfg.FailedAttemptThreshold,
		UnusualLocation:        recentSuccesses > 0 && !homeMatched,
		RapidAttempts:          recentAttempts > s.cfg.RapidAttemptThreshold,
	}
}

// matchesRegion reports whether a location label contains the home-region marker, ignoring case
func matchesRegion(location, homeRegion string) bool {
	if homeRegion == "" {
		return false
	}
	return strings.Contains(strings.ToLower(location), strings.ToLower(homeRegion))
}

// RequiresAdditionalVerification applies the escalation policy. A lone new
// device does not escalate; any other flag does, as does a new device
// combined with a second flag.
func RequiresAdditionalVerification(flags models.AnomalyFlags) bool {
	if flags.SuspiciousIP || flags.MultipleFailedAttempts || flags.UnusualLocation || flags.RapidAttempts {
		return true
	}
	return flags.NewDevice && flags.Count() > 1
}

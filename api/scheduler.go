/*
scheduler.go - Background validation sweep

PURPOSE:
  Periodically validates the previous settlement year's inputs for every
  unit of the configured communities, so missing metering results or MEA
  values surface before the manager tries to generate statements.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Uses Assembler.ValidateInputs; nothing is generated or persisted
  - Every unit is validated; community-wide problems (missing
    external data) are listed once per community
  - Keeps the last report in memory for GET /api/sweep
  - Publishes blocked units per community as a gauge

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Communities: Which communities to sweep

USAGE:
  scheduler := NewValidationScheduler(assembler, repo, communities, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: ValidateStatement endpoint (on-demand validation)
  - settlement/assembler.go: ValidateInputs
*/
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/weg-settlement/metrics"
	"github.com/warp/weg-settlement/settlement"
	"github.com/warp/weg-settlement/weg"
)

// UnitLister is the part of weg.Repository the sweep needs.
type UnitLister interface {
	ListUnits(ctx context.Context, communityID weg.CommunityID) ([]weg.Unit, error)
}

// SweepReport is the result of one sweep.
type SweepReport struct {
	Year        int                 `json:"year"`
	StartedAt   time.Time           `json:"started_at"`
	CompletedAt time.Time           `json:"completed_at"`
	Communities []CommunitySweepDTO `json:"communities"`
}

// CommunitySweepDTO lists the blocked units of one community.
type CommunitySweepDTO struct {
	CommunityID string               `json:"community_id"`
	Units       int                  `json:"units"`
	Blocked     []string             `json:"blocked_units"`
	Errors      []ValidationErrorDTO `json:"errors"`
	Error       string               `json:"error,omitempty"`
}

// ValidationScheduler runs the sweep on a ticker.
type ValidationScheduler struct {
	Assembler     *settlement.Assembler
	Units         UnitLister
	Communities   []weg.CommunityID
	CheckInterval time.Duration
	Logger        logrus.FieldLogger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	reportMu sync.RWMutex
	last     *SweepReport
}

// NewValidationScheduler creates a scheduler with a one hour interval.
func NewValidationScheduler(a *settlement.Assembler, units UnitLister, communities []weg.CommunityID, logger logrus.FieldLogger) *ValidationScheduler {
	if logger == nil {
		logger = settlement.DiscardLogger()
	}
	return &ValidationScheduler{
		Assembler:     a,
		Units:         units,
		Communities:   communities,
		CheckInterval: time.Hour,
		Logger:        logger.WithField("component", "sweep"),
	}
}

// Start begins the scheduler. Calling Start twice is a no-op.
func (vs *ValidationScheduler) Start() {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if vs.ticker != nil {
		return
	}
	vs.ticker = time.NewTicker(vs.CheckInterval)
	vs.stop = make(chan struct{})
	vs.wg.Add(1)

	go vs.run()

	vs.Logger.WithField("interval", vs.CheckInterval.String()).Info("validation sweep started")
}

// Stop stops the scheduler and waits for a running sweep.
func (vs *ValidationScheduler) Stop() {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if vs.ticker != nil {
		vs.ticker.Stop()
		close(vs.stop)
		vs.wg.Wait()
		vs.ticker = nil
		vs.Logger.Info("validation sweep stopped")
	}
}

func (vs *ValidationScheduler) run() {
	defer vs.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-vs.stop
		cancel()
	}()

	// Run immediately on start
	vs.RunNow(ctx)

	for {
		select {
		case <-vs.ticker.C:
			vs.RunNow(ctx)
		case <-vs.stop:
			return
		}
	}
}

// RunNow validates the previous year for every configured community.
func (vs *ValidationScheduler) RunNow(ctx context.Context) SweepReport {
	report := SweepReport{
		Year:      vs.Assembler.Now().Year() - 1,
		StartedAt: time.Now().UTC(),
	}

	for _, communityID := range vs.Communities {
		report.Communities = append(report.Communities, vs.sweepCommunity(ctx, communityID, report.Year))
	}
	report.CompletedAt = time.Now().UTC()

	vs.reportMu.Lock()
	vs.last = &report
	vs.reportMu.Unlock()
	return report
}

func (vs *ValidationScheduler) sweepCommunity(ctx context.Context, communityID weg.CommunityID, year int) CommunitySweepDTO {
	result := CommunitySweepDTO{CommunityID: string(communityID), Blocked: []string{}, Errors: []ValidationErrorDTO{}}
	log := vs.Logger.WithFields(logrus.Fields{"community_id": communityID, "year": year})

	units, err := vs.Units.ListUnits(ctx, communityID)
	if err != nil {
		log.WithError(err).Error("list units failed")
		result.Error = err.Error()
		return result
	}
	result.Units = len(units)

	for _, u := range units {
		errs, err := vs.Assembler.ValidateInputs(ctx, u.ID, year)
		if err != nil {
			log.WithError(err).WithField("unit_id", u.ID).Error("validation failed")
			result.Error = err.Error()
			return result
		}
		if len(errs) == 0 {
			continue
		}
		result.Blocked = append(result.Blocked, string(u.ID))
		for _, dto := range toValidationDTOs(errs) {
			if !containsValidation(result.Errors, dto) {
				result.Errors = append(result.Errors, dto)
			}
		}
	}

	metrics.SetBlockedUnits(string(communityID), len(result.Blocked))
	if len(result.Blocked) > 0 {
		log.WithFields(logrus.Fields{"blocked": len(result.Blocked), "errors": len(result.Errors)}).Warn("statement inputs incomplete")
	} else {
		log.Debug("statement inputs complete")
	}
	return result
}

// Community-wide problems are reported once, not once per unit.
func containsValidation(list []ValidationErrorDTO, e ValidationErrorDTO) bool {
	for _, x := range list {
		if x == e {
			return true
		}
	}
	return false
}

// LastReport returns the most recent sweep, or nil before the first run.
func (vs *ValidationScheduler) LastReport() *SweepReport {
	vs.reportMu.RLock()
	defer vs.reportMu.RUnlock()
	return vs.last
}

// GetSweepReport serves the last sweep report.
func (h *Handler) GetSweepReport(w http.ResponseWriter, r *http.Request) {
	if h.Sweep == nil {
		writeError(w, http.StatusNotFound, "Validation sweep not enabled", nil)
		return
	}
	report := h.Sweep.LastReport()
	if report == nil {
		writeError(w, http.StatusNotFound, "No sweep has completed yet", nil)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

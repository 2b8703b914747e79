// Package healthtracker reports consecutive failures of a repeated activity,
// like blob store uploads, to the healthz endpoint.
package healthtracker

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wojas/go-healthz"
	"go.uber.org/atomic"
)

const (
	// MinEvaluationInterval is the minimum interval allowed between healthz evaluations
	MinEvaluationInterval = time.Second
)

// Config sets the thresholds after which a failing activity degrades the
// health status. Warn thresholds flag the instance, error thresholds fail it.
type Config struct {
	EvaluationInterval time.Duration `yaml:"interval"`
	ErrorDuration      time.Duration `yaml:"error_duration"`
	WarnDuration       time.Duration `yaml:"warn_duration"`
	ErrorSequence      uint32        `yaml:"error_sequence"`
	WarnSequence       uint32        `yaml:"warn_sequence"`
}

// Validated returns the config with minimums enforced and zero thresholds
// replaced by defaults.
func (c Config) Validated() Config {
	if c.EvaluationInterval < MinEvaluationInterval {
		c.EvaluationInterval = MinEvaluationInterval
	}
	if c.ErrorDuration <= 0 {
		c.ErrorDuration = 5 * time.Minute
	}
	if c.WarnDuration <= 0 {
		c.WarnDuration = time.Minute
	}
	if c.ErrorSequence == 0 {
		c.ErrorSequence = 10
	}
	if c.WarnSequence == 0 {
		c.WarnSequence = 3
	}
	return c
}

// HealthTracker tracks consecutive failures of one activity.
type HealthTracker struct {
	Config   Config
	sequence atomic.Uint32
	since    atomic.Time
	lastErr  atomic.Error
	prefix   string
	activity string
	logger   logrus.FieldLogger
}

func New(c Config, prefix string, activity string) *HealthTracker {
	ht := &HealthTracker{
		Config:   c.Validated(),
		prefix:   prefix,
		activity: activity,
		logger:   logrus.WithField("healthtracker", prefix),
	}
	ht.registerSequence()
	ht.registerDuration()
	return ht
}

func (ht *HealthTracker) registerSequence() {
	healthz.Register(fmt.Sprintf("%s_failed_attempts", ht.prefix), ht.Config.EvaluationInterval, func() error {
		conseqFails := ht.sequence.Load()

		if conseqFails >= ht.Config.ErrorSequence {
			return fmt.Errorf("failed to %s %d consecutive times: %v",
				ht.activity, conseqFails, ht.lastErr.Load())
		} else if conseqFails >= ht.Config.WarnSequence {
			return healthz.Warnf("failed to %s %d consecutive times", ht.activity, conseqFails)
		}
		return nil
	})
}

func (ht *HealthTracker) registerDuration() {
	healthz.Register(fmt.Sprintf("%s_failed_duration", ht.prefix), ht.Config.EvaluationInterval, func() error {
		conseqFails := ht.sequence.Load()
		if conseqFails == 0 {
			return nil
		}
		failingFor := time.Since(ht.since.Load()).Round(time.Second)

		if failingFor >= ht.Config.ErrorDuration {
			return fmt.Errorf("failed to %s for %s: %v", ht.activity, failingFor, ht.lastErr.Load())
		} else if failingFor >= ht.Config.WarnDuration {
			return healthz.Warnf("failed to %s for %s", ht.activity, failingFor)
		}
		return nil
	})
}

// AddFailure records one failed attempt.
func (ht *HealthTracker) AddFailure(err error) {
	if ht.sequence.Load() == 0 {
		ht.since.Store(time.Now())
	}
	ht.sequence.Inc()
	ht.lastErr.Store(err)
	ht.logger.WithError(err).Debugf("incremented consecutive failures to %d", ht.sequence.Load())
}

// AddSuccess resets the failure sequence.
func (ht *HealthTracker) AddSuccess() {
	ht.sequence.Store(0)
}

// Failures returns the current number of consecutive failures.
func (ht *HealthTracker) Failures() uint32 {
	return ht.sequence.Load()
}

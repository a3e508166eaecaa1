package rules

import (
	"fmt"
	"time"

	"github.com/roach88/meltshop/internal/alert"
	"github.com/roach88/meltshop/internal/clock"
	"github.com/roach88/meltshop/internal/ir"
)

// Sensor names read by the melting thresholds.
const (
	SensorVoltage = "voltage"
	SensorCosPhi  = "cosphi"
)

// IssueFunc raises an alert for subject.
type IssueFunc func(subject, message string, ts time.Time)

// AlertIssuer routes issued alerts into log without a source event.
func AlertIssuer(log *alert.Log) IssueFunc {
	return func(subject, message string, ts time.Time) {
		log.Trigger(message, ts, subject, nil)
	}
}

type threshold struct {
	breached func(v float64) bool
	format   string
}

// Each band is checked top to bottom and at most one entry fires per band.
var (
	voltageBand = []threshold{
		{func(v float64) bool { return v < 350 }, "Critical low voltage: %.1fV"},
		{func(v float64) bool { return v < 360 }, "Low voltage: %.1fV"},
		{func(v float64) bool { return v > 410 }, "Critical high voltage: %.1fV"},
		{func(v float64) bool { return v > 400 }, "High voltage: %.1fV"},
	}
	cosPhiBand = []threshold{
		{func(v float64) bool { return v < 0.7 }, "Critical low power factor: %.2f"},
		{func(v float64) bool { return v < 0.8 }, "Low power factor: %.2f"},
	}
)

const powerQualityMessage = "Power quality issue detected"

// Melting is the built-in threshold rule for voltage and power factor.
//
// It fires only on sensor contexts. Every alert raised by one evaluation
// shares a single timestamp taken from clk. A reading missing from the
// snapshot skips the checks that need it.
func Melting(issue IssueFunc, clk clock.Clock) Rule {
	return Rule{
		Name: "melting-thresholds",
		Trigger: func(ctx ir.Context) bool {
			switch ctx.Kind {
			case ir.ContextSensor:
				return true
			case ir.ContextEvent:
				return false
			default:
				return false
			}
		},
		Action: func(ctx ir.Context) {
			ts := clk.Now()
			voltage, hasVoltage := ctx.Reading(SensorVoltage)
			cosphi, hasCosPhi := ctx.Reading(SensorCosPhi)
			if hasVoltage {
				checkBand(voltageBand, voltage.Value, ctx.Subject, ts, issue)
			}
			if hasCosPhi {
				checkBand(cosPhiBand, cosphi.Value, ctx.Subject, ts, issue)
			}
			if hasVoltage && hasCosPhi && voltage.Value < 370 && cosphi.Value < 0.8 {
				issue(ctx.Subject, powerQualityMessage, ts)
			}
		},
	}
}

func checkBand(band []threshold, v float64, subject string, ts time.Time, issue IssueFunc) {
	for _, th := range band {
		if th.breached(v) {
			issue(subject, fmt.Sprintf(th.format, v), ts)
			return
		}
	}
}

// AlertOnLabel raises an alert referencing the event for every event
// carrying label. The message is the event's "message" property when it is
// a string, otherwise a generic description. The subject is the event's
// "machine" property.
func AlertOnLabel(label string, log *alert.Log) Rule {
	return LabelRule(label, func(ctx ir.Context) {
		ev := ctx.Event
		message, ok := ev.StringProperty("message")
		if !ok || message == "" {
			message = fmt.Sprintf("Event %s labelled %s", ev.ID(), label)
		}
		subject, _ := ev.StringProperty("machine")
		log.Trigger(message, ev.Timestamp(), subject, ev)
	})
}

package main

import (
	"cellarcore/internal/core"
	"cellarcore/pkg/domain"
	"fmt"
	"strconv"
	"strings"
	"time"
)

func parsePhase(value string) (domain.Phase, error) {
	phase := domain.Phase(strings.ToUpper(strings.TrimSpace(value)))
	if !phase.Valid() {
		return "", domain.InvalidRequestError{Field: "phase", Reason: fmt.Sprintf("unknown phase %q", value)}
	}
	return phase, nil
}

func parseTime(field, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, domain.InvalidRequestError{Field: field, Reason: "expected RFC3339 timestamp"}
	}
	return t.UTC(), nil
}

// parseWindow reads an optional window. An empty start means now, an empty
// end means start plus the default phase duration.
func parseWindow(start, end string, now time.Time) (domain.Interval, error) {
	window := domain.Interval{Start: now.UTC()}
	if start != "" {
		t, err := parseTime("start", start)
		if err != nil {
			return domain.Interval{}, err
		}
		window.Start = t
	}
	if end != "" {
		t, err := parseTime("end", end)
		if err != nil {
			return domain.Interval{}, err
		}
		window.End = t
	} else {
		window.End = window.Start.Add(core.DefaultPhaseDuration)
	}
	return window, window.Validate()
}

// parseOptionalWindow leaves the window zero when neither bound is given so
// the engine applies its own defaults.
func parseOptionalWindow(start, end string) (domain.Interval, error) {
	var window domain.Interval
	if start == "" && end == "" {
		return window, nil
	}
	if start == "" || end == "" {
		return window, domain.InvalidRequestError{Field: "window", Reason: "both --start and --end are required"}
	}
	var err error
	if window.Start, err = parseTime("start", start); err != nil {
		return domain.Interval{}, err
	}
	if window.End, err = parseTime("end", end); err != nil {
		return domain.Interval{}, err
	}
	return window, window.Validate()
}

// parseVesselVolume reads "vessel" or "vessel=volume". A missing volume is
// reported as zero and left to the engine.
func parseVesselVolume(value string) (string, float64, error) {
	ref, volume, hasVolume := strings.Cut(strings.TrimSpace(value), "=")
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", 0, domain.InvalidRequestError{Field: "vessel", Reason: "vessel reference required"}
	}
	if !hasVolume {
		return ref, 0, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(volume), 64)
	if err != nil {
		return "", 0, domain.InvalidRequestError{Field: "vessel", Reason: fmt.Sprintf("invalid volume %q", volume)}
	}
	return ref, v, nil
}

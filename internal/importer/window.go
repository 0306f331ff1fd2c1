package importer

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/bank-importers/internal/config"
)

// Window decides whether a row's date falls inside the statement's
// reporting period.
type Window struct {
	enabled bool
	mode    string

	// match mode
	month string
	year  string

	// range mode
	start  civil.Date
	end    civil.Date
	layout string
}

// NewWindow builds a window filter from the bundle's window parameters
// and date format.
func NewWindow(cfg config.Window, dateFormat string) (*Window, error) {
	w := &Window{enabled: cfg.Enabled(), mode: cfg.Mode, layout: dateFormat}
	if w.mode == "" {
		w.mode = config.WindowMatch
	}
	if !w.enabled {
		return w, nil
	}
	switch w.mode {
	case config.WindowMatch:
		w.month, w.year = cfg.Month, cfg.Year
	case config.WindowRange:
		start, err := civil.ParseDate(cfg.Start)
		if err != nil {
			return nil, fmt.Errorf("window: start %q: %w", cfg.Start, err)
		}
		end, err := civil.ParseDate(cfg.End)
		if err != nil {
			return nil, fmt.Errorf("window: end %q: %w", cfg.End, err)
		}
		if end.Before(start) {
			return nil, fmt.Errorf("window: end %s before start %s", end, start)
		}
		w.start, w.end = start, end
	default:
		return nil, fmt.Errorf("window: unknown mode %q", w.mode)
	}
	return w, nil
}

// NormalizeDateCell reduces a compound date cell to its leading date:
// "11/16/2018 as of 11/15/2018" becomes "11/16/2018".
func NormalizeDateCell(cell string) string {
	return strings.SplitN(cell, " ", 2)[0]
}

// Keep reports whether a normalized date string is inside the window.
//
// Match mode compares text, not parsed dates: the month token must be
// the string's prefix and the year token its suffix, exactly as the
// source exports encode their period. Zero-padding differences between
// the token and the cell therefore matter; that is the compatibility
// contract, not an oversight.
func (w *Window) Keep(dateStr string) (bool, error) {
	if !w.enabled {
		return true, nil
	}
	switch w.mode {
	case config.WindowMatch:
		return strings.HasPrefix(dateStr, w.month) && strings.HasSuffix(dateStr, w.year), nil
	case config.WindowRange:
		t, err := time.Parse(w.layout, dateStr)
		if err != nil {
			return false, fmt.Errorf("window: parsing date %q with layout %q: %w", dateStr, w.layout, err)
		}
		d := civil.DateOf(t)
		return !d.Before(w.start) && !d.After(w.end), nil
	}
	return true, nil
}

// Package tle handles two-line element sets: parsing the 3-line NORAD text
// format, validating line shapes, and holding the current dataset for the
// rest of the service.
package tle

import (
	"fmt"
	"strings"
	"time"
)

// Entry is a single satellite's two-line element set.
type Entry struct {
	CatalogID int
	Name      string
	Epoch     time.Time
	Line1     string
	Line2     string
}

// EpochRange is the min/max epoch across a dataset.
type EpochRange struct {
	Min time.Time
	Max time.Time
}

// Dataset is a complete set of TLE data from one source.
type Dataset struct {
	Source     string
	FetchedAt  time.Time
	EpochRange EpochRange
	Satellites []Entry
}

// ValidateLines performs shape validation on a TLE line pair: 69 characters
// each, correct line-number prefix. The SGP4 library calls log.Fatal on
// garbage input, so everything must pass through here first.
func ValidateLines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got %q", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got %q", line2[0])
	}
	return nil
}

package tle

import (
	"strings"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	input := tleText(
		[3]string{issName, issLine1, issLine2},
		[3]string{starlinkName, starlinkLine1, starlinkLine2},
	)

	entries, err := Parse(strings.NewReader(input), testLogger)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	iss := entries[0]
	if iss.CatalogID != 25544 {
		t.Errorf("catalog ID = %d, want 25544", iss.CatalogID)
	}
	if iss.Name != "ISS (ZARYA)" {
		t.Errorf("name = %q, want %q", iss.Name, "ISS (ZARYA)")
	}
	// Epoch 24100.5 = 2024, day 100.5.
	wantEpoch := time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)
	if !iss.Epoch.Equal(wantEpoch) {
		t.Errorf("epoch = %v, want %v", iss.Epoch, wantEpoch)
	}
}

func TestParse_SkipsMalformed(t *testing.T) {
	input := "GARBAGE\nnot a tle line\nanother bad line\n" +
		tleText([3]string{issName, issLine1, issLine2})

	entries, err := Parse(strings.NewReader(input), testLogger)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1 (malformed prefix skipped)", len(entries))
	}
	if entries[0].CatalogID != 25544 {
		t.Errorf("catalog ID = %d, want 25544", entries[0].CatalogID)
	}
}

func TestParse_Empty(t *testing.T) {
	entries, err := Parse(strings.NewReader(""), testLogger)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("got %d entries from empty input, want 0", len(entries))
	}
}

func TestParseEpoch_CenturyWindow(t *testing.T) {
	tests := []struct {
		in       string
		wantYear int
	}{
		{"24100.50000000", 2024},
		{"00001.00000000", 2000},
		{"56365.00000000", 2056},
		{"57001.00000000", 1957},
		{"99365.00000000", 1999},
	}

	for _, tt := range tests {
		got, err := parseEpoch(tt.in)
		if err != nil {
			t.Errorf("parseEpoch(%q) error: %v", tt.in, err)
			continue
		}
		if got.Year() != tt.wantYear {
			t.Errorf("parseEpoch(%q).Year() = %d, want %d", tt.in, got.Year(), tt.wantYear)
		}
	}
}

func TestValidateLines(t *testing.T) {
	tests := []struct {
		name    string
		line1   string
		line2   string
		wantErr bool
	}{
		{"valid", issLine1, issLine2, false},
		{"empty", "", "", true},
		{"short line1", "1 25544U", issLine2, true},
		{"short line2", issLine1, "2 25544", true},
		{"swapped prefixes", issLine2, issLine1, true},
		{"garbage", "invalid", "invalid", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLines(tt.line1, tt.line2)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateLines() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStoreLookup(t *testing.T) {
	store := NewStore()
	if store.Lookup(25544) != nil {
		t.Error("Lookup on empty store should return nil")
	}
	if store.AgeSeconds() != -1 {
		t.Error("AgeSeconds on empty store should return -1")
	}

	store.Set(&Dataset{
		Source:    "test",
		FetchedAt: time.Now(),
		Satellites: []Entry{
			{CatalogID: 25544, Name: "ISS", Line1: issLine1, Line2: issLine2},
		},
	})

	e := store.Lookup(25544)
	if e == nil || e.Name != "ISS" {
		t.Fatalf("Lookup(25544) = %v, want ISS entry", e)
	}
	if store.Lookup(99999) != nil {
		t.Error("Lookup of unknown catalog ID should return nil")
	}
	if store.AgeSeconds() < 0 {
		t.Error("AgeSeconds should be non-negative with a dataset loaded")
	}
}

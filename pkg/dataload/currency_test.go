package dataload

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLooksLikeCurrency(t *testing.T) {
	tests := []struct {
		name   string
		values []any
		want   bool
	}{
		{"dollars", []any{"$42,013", "$1,234.56", "$7"}, true},
		{"too few samples", []any{"$1", "$2", nil}, false},
		{"four of five", []any{"$1", "$2", "$3", "$4", "N/A"}, true},
		{"two of three", []any{"$100", "N/A", "$200"}, false},
		{"plain numbers", []any{int64(1), int64(2), int64(3)}, false},
		{"three decimals", []any{"$1.234", "$2.345", "$3.456"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LooksLikeCurrency(tt.values); got != tt.want {
				t.Errorf("LooksLikeCurrency(%v) = %v, want %v", tt.values, got, tt.want)
			}
		})
	}
}

func TestCleanCurrency(t *testing.T) {
	got := CleanCurrency([]any{"$42,013", "$1,234.56", "$1.5M", "2b", "N/A", nil}, 1)
	want := []any{42013.0, 1234.56, 1.5, 2.0, nil, nil}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("CleanCurrency() mismatch (-want +got):\n%s", diff)
	}

	scaled := CleanCurrency([]any{"$1.5"}, 1_000_000)
	if diff := cmp.Diff([]any{1500000.0}, scaled); diff != "" {
		t.Errorf("scaled mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeSheetsURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{
			"https://docs.google.com/spreadsheets/d/abc-123_X/edit#gid=42",
			"https://docs.google.com/spreadsheets/d/abc-123_X/export?format=csv&gid=42",
		},
		{
			"https://docs.google.com/spreadsheets/d/abc/edit",
			"https://docs.google.com/spreadsheets/d/abc/export?format=csv",
		},
		{
			"https://docs.google.com/spreadsheets/d/abc/export?format=csv",
			"https://docs.google.com/spreadsheets/d/abc/export?format=csv",
		},
		{"https://example.com/data.csv", "https://example.com/data.csv"},
	}
	for _, tt := range tests {
		if got := NormalizeSheetsURL(tt.in); got != tt.want {
			t.Errorf("NormalizeSheetsURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFiscalYearValue(t *testing.T) {
	tests := []struct {
		in   any
		want any
	}{
		{int64(2024), jan1(2024)},
		{2024.0, jan1(2024)},
		{" 2021 ", jan1(2021)},
		{"FY 1976 tq", TransitionQuarter},
		{"Totals", nil},
		{int64(1850), nil},
		{nil, nil},
		{true, nil},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, FiscalYearValue(tt.in)); diff != "" {
			t.Errorf("FiscalYearValue(%v) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestRoundToYears(t *testing.T) {
	got := roundToYears([]any{"1959-01-09", "1959-06-14", "1959-06-15", "1961-12-07", nil, "n/a"})
	want := []any{int64(1959), int64(1959), int64(1960), int64(1962), nil, nil}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("roundToYears() mismatch (-want +got):\n%s", diff)
	}
}

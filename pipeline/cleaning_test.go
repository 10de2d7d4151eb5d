package pipeline

import (
	"testing"
)

func TestNewDataCleaner(t *testing.T) {
	cleaner := NewDataCleaner(nil, NewNumericRule("Close"))
	if cleaner == nil {
		t.Fatal("NewDataCleaner returned nil")
	}
	if len(cleaner.rules) != 1 {
		t.Errorf("expected 1 rule, got %d", len(cleaner.rules))
	}
}

func TestPriceValidationRule(t *testing.T) {
	rule := NewPriceValidationRule()
	columns := []string{"Open", "High", "Low", "Close"}

	tests := []struct {
		name    string
		row     []string
		wantErr bool
	}{
		{
			name:    "valid bar",
			row:     []string{"10.45", "10.55", "10.40", "10.50"},
			wantErr: false,
		},
		{
			name:    "high less than low",
			row:     []string{"10.50", "10.40", "10.50", "10.45"},
			wantErr: true,
		},
		{
			name:    "close outside range",
			row:     []string{"10.45", "10.55", "10.40", "10.60"},
			wantErr: true,
		},
		{
			name:    "open outside range",
			row:     []string{"9.00", "10.55", "10.40", "10.50"},
			wantErr: true,
		},
		{
			name:    "missing close",
			row:     []string{"10.45", "10.55", "10.40", "null"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := NewFrame(columns, [][]string{tt.row})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			err = rule.Apply(frame.Row(0))
			if (err != nil) != tt.wantErr {
				t.Errorf("PriceValidationRule.Apply() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNonNegativeRule(t *testing.T) {
	frame, err := NewFrame([]string{"km"}, [][]string{{"100"}, {"-5"}, {"abc"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rule := NewNonNegativeRule("km")

	if err := rule.Apply(frame.Row(0)); err != nil {
		t.Errorf("expected row 0 to pass, got %v", err)
	}
	if err := rule.Apply(frame.Row(1)); err == nil {
		t.Error("expected negative value to be rejected")
	}
	if err := rule.Apply(frame.Row(2)); err != nil {
		t.Errorf("non-numeric cells are not this rule's concern, got %v", err)
	}
}

func TestDataCleanerClean(t *testing.T) {
	frame, err := NewFrame(
		[]string{"Open", "High", "Low", "Close", "Volume"},
		[][]string{
			{"10", "11", "9", "10.5", "1000"},
			{"10", "9", "11", "10.5", "1000"},
			{"10", "11", "9", "10.5", "-1"},
			{"10", "11", "9", "", "1000"},
			{"12", "13", "11", "12.5", "2000"},
		},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cleaner := NewDataCleaner(nil,
		NewNumericRule("Open", "High", "Low", "Close", "Volume"),
		NewNonNegativeRule("Volume"),
	)
	cleaner.AddRule(NewPriceValidationRule())

	cleaned, issues := cleaner.Clean(frame)
	if cleaned.Len() != 2 {
		t.Fatalf("expected 2 rows kept, got %d", cleaned.Len())
	}
	if len(issues) < 3 {
		t.Fatalf("expected at least 3 issues, got %d", len(issues))
	}
	if frame.Len() != 5 {
		t.Fatalf("source frame must not be modified, got %d rows", frame.Len())
	}

	stats := cleaner.GetStats()
	if stats.TotalProcessed != 5 {
		t.Errorf("expected 5 processed, got %d", stats.TotalProcessed)
	}
	if stats.Passed != 2 || stats.Rejected != 3 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.Issues["price_validation"] == 0 {
		t.Error("expected price_validation issues to be counted")
	}
}

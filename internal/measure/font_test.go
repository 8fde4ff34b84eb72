package measure

import (
	"strings"
	"testing"
)

func TestFontMeasurer_Measure(t *testing.T) {
	m, err := NewFontMeasurer(14)
	if err != nil {
		t.Fatalf("failed to create measurer: %v", err)
	}
	defer m.Close()

	if got := m.Measure(""); got != 0 {
		t.Errorf("empty text: expected 0, got %v", got)
	}

	short := m.Measure("Queen")
	long := m.Measure("Queen - Bohemian Rhapsody (Remastered 2011)")
	if short <= 0 {
		t.Fatalf("expected positive width, got %v", short)
	}
	if long <= short {
		t.Errorf("expected longer text to be wider: %v <= %v", long, short)
	}

	// Measuring is stable
	if again := m.Measure("Queen"); again != short {
		t.Errorf("expected %v on second measure, got %v", short, again)
	}

	// The separator has a visible width
	if w := m.Measure(strings.Repeat("\u00a0", 8)); w <= 0 {
		t.Errorf("expected non-breaking spaces to have width, got %v", w)
	}
}

func TestFontMeasurer_ScalesWithSize(t *testing.T) {
	small, err := NewFontMeasurer(10)
	if err != nil {
		t.Fatalf("failed to create measurer: %v", err)
	}
	large, err := NewFontMeasurer(20)
	if err != nil {
		t.Fatalf("failed to create measurer: %v", err)
	}

	text := "Artist X"
	if small.Measure(text) >= large.Measure(text) {
		t.Errorf("expected 20px face to be wider than 10px face")
	}
	if large.Size() != 20 {
		t.Errorf("expected size 20, got %v", large.Size())
	}
}

func TestNewFontMeasurer_Errors(t *testing.T) {
	tests := []struct {
		name          string
		data          []byte
		size          float64
		expectedError string
	}{
		{name: "Zero Size", data: nil, size: 0, expectedError: "invalid font size"},
		{name: "Garbage Font", data: []byte("not-a-font"), size: 12, expectedError: "failed to parse font"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFontMeasurerFromTTF(tt.data, tt.size)
			if err == nil {
				t.Fatalf("expected error containing '%s', got nil", tt.expectedError)
			}
			if !strings.Contains(err.Error(), tt.expectedError) {
				t.Errorf("expected error '%s' to contain '%s'", err.Error(), tt.expectedError)
			}
		})
	}
}

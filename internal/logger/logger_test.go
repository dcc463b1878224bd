package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   int
		wantOK bool
	}{
		{"error", LevelError, true},
		{"WARN", LevelWarning, true},
		{"warning", LevelWarning, true},
		{"", LevelInfo, true},
		{" debug ", LevelDebug, true},
		{"verbose", LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLevel(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseLevel(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestSetupWithOutputDiscardsBelowLevel(t *testing.T) {
	defer Setup(LevelInfo)

	var out, errOut bytes.Buffer
	SetupWithOutput(LevelWarning, &out, &errOut)

	Info.Println("hidden")
	Debug.Println("hidden")
	Warn.Println("shown warning")
	Error.Println("shown error")

	if out.Len() != 0 {
		t.Errorf("info/debug output = %q, want empty", out.String())
	}
	if !strings.Contains(errOut.String(), "shown warning") || !strings.Contains(errOut.String(), "shown error") {
		t.Errorf("error output = %q, want warning and error lines", errOut.String())
	}
	if GetCurrentLevel() != LevelWarning {
		t.Errorf("GetCurrentLevel() = %d, want %d", GetCurrentLevel(), LevelWarning)
	}
}

// SPDX-License-Identifier: MIT
package log

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input  string
		want   LogLevel
		wantOK bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"Warning", LevelWarn, true},
		{"error", LevelError, true},
		{"fatal", LevelFatal, true},
		{"verbose", LevelInfo, false},
		{"", LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseLevel(tt.input)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseLevel(%q) = (%s, %v), want (%s, %v)", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
	})

	SetLevel(LevelWarn)
	Infof("Host: hidden %d", 1)
	Warnf("Host: shown %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message logged at warn level: %q", out)
	}
	if !strings.Contains(out, "shown 2") {
		t.Errorf("warn message missing: %q", out)
	}
}

func TestConfigureFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host.log")
	closer := Configure("debug", FileOptions{Filename: path, MaxSize: 1})
	t.Cleanup(func() {
		closer.Close()
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
	})

	if GetLevel() != LevelDebug {
		t.Errorf("level: got %s, want %s", GetLevel(), LevelDebug)
	}

	Debugf("Log: written to file")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("log file missing message: %q", data)
	}
}

func TestConfigureQuiet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quiet.log")
	closer := Configure("info", FileOptions{Filename: path, Quiet: true})
	t.Cleanup(func() {
		closer.Close()
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
	})

	Infof("Log: quiet message")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "quiet message") {
		t.Errorf("log file missing message: %q", data)
	}
}

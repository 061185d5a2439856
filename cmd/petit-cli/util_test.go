package main

import "testing"

func TestParseWindow(t *testing.T) {
	tests := []struct {
		name    string
		start   string
		end     string
		wantNil bool
		wantErr bool
	}{
		{name: "no bounds", wantNil: true},
		{name: "valid window", start: "2024-03-01T00:00:00Z", end: "2024-03-02T00:00:00Z"},
		{name: "start only", start: "2024-03-01T00:00:00Z", wantErr: true},
		{name: "end only", end: "2024-03-02T00:00:00Z", wantErr: true},
		{name: "end before start", start: "2024-03-02T00:00:00Z", end: "2024-03-01T00:00:00Z", wantErr: true},
		{name: "equal bounds", start: "2024-03-01T00:00:00Z", end: "2024-03-01T00:00:00Z", wantErr: true},
		{name: "malformed timestamp", start: "yesterday", end: "2024-03-02T00:00:00Z", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			window, err := parseWindow(tt.start, tt.end)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if tt.wantNil != (window == nil) {
				t.Fatalf("window = %+v, wantNil %v", window, tt.wantNil)
			}
			if window != nil && !window.End.After(window.Start) {
				t.Fatal("window bounds out of order")
			}
		})
	}
}

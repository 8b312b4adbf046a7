package valueobject

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTimestamp_MarshalsMilliseconds(t *testing.T) {
	ts := NewTimestamp(time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC))

	data, err := json.Marshal(ts)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != "1709294400123" {
		t.Fatalf("unexpected encoding: %s", data)
	}
}

func TestTimestamp_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "integer", input: "1709294400123", want: 1709294400123},
		{name: "fractional", input: "1709294400123.6", want: 1709294400124},
		{name: "string rejected", input: `"2024-03-01"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts Timestamp
			err := json.Unmarshal([]byte(tt.input), &ts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && ts.Millis() != tt.want {
				t.Fatalf("Millis() = %d, want %d", ts.Millis(), tt.want)
			}
		})
	}
}

func TestTimestamp_RoundTripIsEqual(t *testing.T) {
	original := Now()

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded Timestamp
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if !decoded.Equal(original) {
		t.Fatalf("round trip changed value: %v != %v", decoded.Time(), original.Time())
	}
}

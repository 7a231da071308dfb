package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/bytedance/sonic"
)

func TestTimestampRoundTrip(t *testing.T) {
	in := NewTimestamp(time.Date(2024, 5, 17, 13, 4, 5, 987654321, time.FixedZone("CEST", 2*3600)))

	data, err := sonic.ConfigStd.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"2024-05-17T11:04:05.987654321Z"` {
		t.Fatalf("unexpected encoding: %s", data)
	}

	var out Timestamp
	if err := sonic.ConfigStd.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.Equal(in.Time) {
		t.Fatalf("round trip mismatch: got %v want %v", out.Time, in.Time)
	}
}

func TestTimestampUnmarshalFormats(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{name: "iso with millis", in: `"2024-01-02T03:04:05.678Z"`, want: time.Date(2024, 1, 2, 3, 4, 5, 678000000, time.UTC)},
		{name: "iso without fraction", in: `"2024-01-02T03:04:05Z"`, want: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{name: "offset", in: `"2024-01-02T05:04:05+02:00"`, want: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{name: "epoch millis", in: `1704164645678`, want: time.Date(2024, 1, 2, 3, 4, 5, 678000000, time.UTC)},
		{name: "null", in: `null`, want: time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts Timestamp
			if err := json.Unmarshal([]byte(tt.in), &ts); err != nil {
				t.Fatalf("unmarshal %s: %v", tt.in, err)
			}
			if !ts.Equal(tt.want) {
				t.Fatalf("got %v want %v", ts.Time, tt.want)
			}
		})
	}
}

func TestTimestampUnmarshalRejectsGarbage(t *testing.T) {
	var ts Timestamp
	if err := json.Unmarshal([]byte(`"yesterday"`), &ts); err == nil {
		t.Fatalf("expected error for non-ISO string")
	}
	if err := json.Unmarshal([]byte(`true`), &ts); err == nil {
		t.Fatalf("expected error for boolean")
	}
}

func TestTimestampZeroMarshalsNull(t *testing.T) {
	data, err := json.Marshal(struct {
		At Timestamp `json:"at"`
	}{})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"at":null}` {
		t.Fatalf("unexpected encoding: %s", data)
	}
}

package service

import (
	"math"
	"testing"
	"time"

	"github.com/dreschagin/session-telemetry/internal/domain/entity"
	"github.com/dreschagin/session-telemetry/internal/domain/valueobject"
)

func TestEntryValidator_Validate(t *testing.T) {
	validator := NewEntryValidator()

	okLog, _ := entity.NewLog(valueobject.LevelInfo, "hello", entity.SourceLocation{})
	okEvent, _ := entity.NewEvent("purchase")

	future := okLog
	future.Timestamp = valueobject.NewTimestamp(time.Now().Add(time.Hour))

	nanMetric := okEvent.WithMetric("ratio", math.NaN())

	negative := okEvent.WithDuration(-time.Second)

	var nilLog *entity.Log

	tests := []struct {
		name    string
		entry   entity.Entry
		wantErr bool
	}{
		{name: "valid log", entry: okLog},
		{name: "valid event pointer", entry: &okEvent},
		{name: "nil entry", entry: nil, wantErr: true},
		{name: "typed nil", entry: nilLog, wantErr: true},
		{name: "future timestamp", entry: future, wantErr: true},
		{name: "nan metric", entry: nanMetric, wantErr: true},
		{name: "negative duration", entry: negative, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.Validate(tt.entry)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

package valueobject

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Timestamp - момент времени с точностью до миллисекунды.
// В JSON кодируется числом миллисекунд с начала эпохи.
type Timestamp struct {
	t time.Time
}

// NewTimestamp обрезает время до миллисекунд
func NewTimestamp(t time.Time) Timestamp {
	if t.IsZero() {
		return Timestamp{}
	}
	return Timestamp{t: time.UnixMilli(t.UnixMilli())}
}

// Now возвращает текущий момент
func Now() Timestamp {
	return NewTimestamp(time.Now())
}

// TimestampFromMillis восстанавливает момент из миллисекунд
func TimestampFromMillis(ms int64) Timestamp {
	return Timestamp{t: time.UnixMilli(ms)}
}

// Time возвращает значение как time.Time
func (ts Timestamp) Time() time.Time {
	return ts.t
}

// Millis возвращает количество миллисекунд с начала эпохи
func (ts Timestamp) Millis() int64 {
	return ts.t.UnixMilli()
}

// IsZero сообщает, задан ли момент
func (ts Timestamp) IsZero() bool {
	return ts.t.IsZero()
}

// Equal сравнивает два момента
func (ts Timestamp) Equal(other Timestamp) bool {
	return ts.t.Equal(other.t)
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.t.IsZero() {
		return []byte("null"), nil
	}
	return strconv.AppendInt(nil, ts.t.UnixMilli(), 10), nil
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*ts = Timestamp{}
		return nil
	}

	var ms json.Number
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("timestamp must be a number of milliseconds: %w", err)
	}

	if whole, err := ms.Int64(); err == nil {
		*ts = TimestampFromMillis(whole)
		return nil
	}

	fractional, err := ms.Float64()
	if err != nil || math.IsNaN(fractional) || math.IsInf(fractional, 0) {
		return fmt.Errorf("invalid timestamp %s", string(data))
	}
	*ts = TimestampFromMillis(int64(math.Round(fractional)))
	return nil
}

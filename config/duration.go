package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration 可以用字符串（"30s"）或纳秒整数表示的 time.Duration
type Duration time.Duration

// UnmarshalJSON 解析 "30s" 形式的字符串或纳秒整数
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("duration must be a string such as \"30s\" or an integer of nanoseconds")
	}
	*d = Duration(n)
	return nil
}

// MarshalJSON 输出可读的字符串
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Duration 底层值
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

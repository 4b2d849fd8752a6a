package ntp

import "time"

// LocalTimeProvider reads the system clock.
type LocalTimeProvider struct{}

func NewLocalTimeProvider() *LocalTimeProvider {
	return &LocalTimeProvider{}
}

func (l *LocalTimeProvider) NowUnixMilli() int64 {
	return time.Now().UnixMilli()
}

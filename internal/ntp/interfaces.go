package ntp

// TimeProvider supplies the epoch-millisecond timestamps stamped on
// simulated positions.
type TimeProvider interface {
	NowUnixMilli() int64
}

// Package trackerpb holds the wire types of the robot.RobotTracker gRPC service:
//
//	service RobotTracker {
//	  rpc TrackRobot(TrackRequest) returns (stream Position);
//	}
//	message TrackRequest {}
//	message Position {
//	  double x = 1;
//	  double y = 2;
//	  int64 timestamp = 3;
//	}
package trackerpb

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	positionXField         protowire.Number = 1
	positionYField         protowire.Number = 2
	positionTimestampField protowire.Number = 3
)

// TrackRequest is the empty request of TrackRobot.
type TrackRequest struct{}

func (*TrackRequest) Marshal() ([]byte, error) {
	return []byte{}, nil
}

func (*TrackRequest) Unmarshal(b []byte) error {
	return skipFields(b)
}

// Position is one streamed item of TrackRobot.
type Position struct {
	X         float64
	Y         float64
	Timestamp int64
}

func (p *Position) Marshal() ([]byte, error) {
	var b []byte
	if p.X != 0 {
		b = protowire.AppendTag(b, positionXField, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(p.X))
	}
	if p.Y != 0 {
		b = protowire.AppendTag(b, positionYField, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(p.Y))
	}
	if p.Timestamp != 0 {
		b = protowire.AppendTag(b, positionTimestampField, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(p.Timestamp))
	}
	return b, nil
}

func (p *Position) Unmarshal(b []byte) error {
	*p = Position{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("position: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == positionXField && typ == protowire.Fixed64Type:
			v, m := protowire.ConsumeFixed64(b)
			if m < 0 {
				return fmt.Errorf("position.x: %w", protowire.ParseError(m))
			}
			p.X = math.Float64frombits(v)
			n = m
		case num == positionYField && typ == protowire.Fixed64Type:
			v, m := protowire.ConsumeFixed64(b)
			if m < 0 {
				return fmt.Errorf("position.y: %w", protowire.ParseError(m))
			}
			p.Y = math.Float64frombits(v)
			n = m
		case num == positionTimestampField && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return fmt.Errorf("position.timestamp: %w", protowire.ParseError(m))
			}
			p.Timestamp = int64(v)
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("position: field %d: %w", num, protowire.ParseError(n))
			}
		}
		b = b[n:]
	}
	return nil
}

func skipFields(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}
	return nil
}

package mirror

import (
	"context"
	"errors"

	"github.com/practice-robot/robot-bridge/internal/models"
	"github.com/practice-robot/robot-bridge/internal/tracker"
	"github.com/practice-robot/robot-bridge/internal/utils"
)

// Tee hands every position to each sink in order. A failing sink does not
// stop the ones after it; all failures are joined into the result.
type Tee []tracker.Sink

func (t Tee) Broadcast(ctx context.Context, position models.Position) error {
	var errs []error
	for _, sink := range t {
		err := utils.CallWithRecovery(func() error {
			return sink.Broadcast(ctx, position)
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

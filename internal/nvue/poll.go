package nvue

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// waitForApply re-reads the revision at path until it reports "applied".
// It polls wait+1 times at most, one poll interval apart, and returns the last
// document it saw. Running out of polls is not an error: the device may still
// finish the apply after we stop watching.
func (c *Client) waitForApply(ctx context.Context, revisionID, path string, wait int, result *Response) (*Response, error) {
	polls := 0

	for remaining := wait; remaining >= 0; remaining-- {
		resp, err := c.send(ctx, OpApplyRevision, http.MethodGet, path, nil)
		if err != nil {
			return nil, fmt.Errorf("poll revision %s: %w", revisionID, err)
		}
		polls++
		result = resp

		c.observer.ApplyPolled(revisionID, polls, resp.StateString())
		if resp.State() == StateApplied {
			break
		}
		if remaining == 0 {
			break
		}

		if err := c.clock.Sleep(ctx, c.pollInterval); err != nil {
			return nil, fmt.Errorf("waiting for revision %s to apply: %w", revisionID, err)
		}
	}

	state := result.State()
	c.observer.ApplyFinished(revisionID, state, polls)

	if state != StateApplied {
		c.logger.Warn("Revision not applied before wait expired",
			zap.String("revision", revisionID),
			zap.String("state", result.StateString()),
			zap.Int("polls", polls),
		)
	} else {
		c.logger.Debug("Revision applied",
			zap.String("revision", revisionID),
			zap.Int("polls", polls),
		)
	}

	return result, nil
}

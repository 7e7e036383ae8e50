package catfeed

import (
	"context"
	"errors"

	"github.com/MrEthical07/catfeed/session"
)

var errNoPendingFlash = errors.New("no pending flash")

// SetFlash stores n as the pending notice of the session, replacing any
// earlier one.
func (e *Engine) SetFlash(ctx context.Context, sessionID string, n Notice) error {
	_, err := e.mutate(ctx, sessionID, func(s *session.Session) error {
		s.FlashKind = uint8(n.Kind)
		s.FlashArg = n.Arg
		return nil
	})
	if err != nil {
		return err
	}
	e.metricInc(MetricFlashSet)
	return nil
}

// TakeFlash returns and clears the pending notice. A missing session or an
// empty slot yields ok=false without error.
func (e *Engine) TakeFlash(ctx context.Context, sessionID string) (Notice, bool, error) {
	var taken Notice

	_, err := e.mutate(ctx, sessionID, func(s *session.Session) error {
		if s.FlashKind == 0 {
			return errNoPendingFlash
		}
		taken = Notice{Kind: NoticeKind(s.FlashKind), Arg: s.FlashArg}
		s.FlashKind = 0
		s.FlashArg = ""
		return nil
	})
	if errors.Is(err, ErrSessionNotFound) || errors.Is(err, errNoPendingFlash) {
		return Notice{}, false, nil
	}
	if err != nil {
		return Notice{}, false, err
	}

	e.metricInc(MetricFlashDelivered)
	return taken, true, nil
}

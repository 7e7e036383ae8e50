package catfeed

import (
	"context"

	"github.com/MrEthical07/catfeed/internal"
	"github.com/MrEthical07/catfeed/session"
)

// IssueCSRF mints a token for the session's next form submission. Any
// earlier token is overwritten.
func (e *Engine) IssueCSRF(ctx context.Context, sessionID string) (string, error) {
	token, err := internal.NewCSRFToken()
	if err != nil {
		return "", err
	}

	_, err = e.mutate(ctx, sessionID, func(s *session.Session) error {
		s.CSRFToken = token
		return nil
	})
	if err != nil {
		return "", err
	}

	e.metricInc(MetricCSRFIssued)
	return token, nil
}

// CancelCSRF clears the session's token.
func (e *Engine) CancelCSRF(ctx context.Context, sessionID string) error {
	_, err := e.mutate(ctx, sessionID, func(s *session.Session) error {
		s.CSRFToken = ""
		return nil
	})
	return err
}

// VerifyCSRF compares token with the stored one and clears the stored token
// in the same transaction, whatever the outcome. A token therefore verifies
// at most once. Role and username are left alone.
func (e *Engine) VerifyCSRF(ctx context.Context, token, sessionID string) (bool, error) {
	var ok bool

	_, err := e.mutate(ctx, sessionID, func(s *session.Session) error {
		ok = token != "" && s.CSRFToken != "" && s.CSRFToken == token
		s.CSRFToken = ""
		return nil
	})
	if err != nil {
		return false, err
	}

	if !ok {
		e.metricInc(MetricCSRFRejected)
		e.emitAudit(ctx, auditEventCSRFRejected, false, "", sessionID, ErrCSRFMismatch, nil)
	}
	return ok, nil
}

// checkCSRF verifies token and, on mismatch, flashes NoticeCSRFRejected and
// returns ErrCSRFMismatch.
func (e *Engine) checkCSRF(ctx context.Context, token, sessionID string) error {
	ok, err := e.VerifyCSRF(ctx, token, sessionID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if err := e.SetFlash(ctx, sessionID, Notice{Kind: NoticeCSRFRejected}); err != nil {
		return err
	}
	return ErrCSRFMismatch
}

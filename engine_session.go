package catfeed

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/catfeed/internal"
	"github.com/MrEthical07/catfeed/session"
)

// sessionIDAttempts bounds how many fresh identifiers StartSession draws.
const sessionIDAttempts = 2

// StartSession creates a session for role and username that expires
// Session.TTL from now. The identifier is claimed with SET NX; a collision
// draws one more identifier before giving up with ErrTokenGenerationExhausted.
func (e *Engine) StartSession(ctx context.Context, role Role, username string) (*session.Session, error) {
	return e.startSession(ctx, role, username, Notice{})
}

func (e *Engine) startSession(ctx context.Context, role Role, username string, notice Notice) (*session.Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, fmt.Errorf("invalid role %q", role)
	}

	for attempt := 0; attempt < sessionIDAttempts; attempt++ {
		sid, err := e.newSessionID()
		if err != nil {
			return nil, err
		}

		now := e.now()
		sess := &session.Session{
			ID:        sid,
			Role:      role,
			Username:  username,
			FlashKind: uint8(notice.Kind),
			FlashArg:  notice.Arg,
			CreatedAt: now.Unix(),
			ExpiresAt: now.Add(e.config.Session.TTL).Unix(),
		}

		err = e.sessionStore.Create(ctx, sess, now)
		e.observeStore(now)
		if errors.Is(err, session.ErrExists) {
			e.metricInc(MetricSessionCollision)
			e.logger.Warn().Int("attempt", attempt+1).Msg("catfeed: session id collision")
			continue
		}
		if err != nil {
			return nil, mapSessionError(err)
		}

		e.metricInc(MetricSessionStarted)
		e.emitAudit(ctx, auditEventSessionStarted, true, username, sess.ID, nil, func() map[string]string {
			return map[string]string{"role": string(role)}
		})
		return sess, nil
	}

	return nil, ErrTokenGenerationExhausted
}

// GetSession loads a live session. Empty, unknown and expired identifiers
// all report ErrSessionNotFound.
func (e *Engine) GetSession(ctx context.Context, sessionID string) (*session.Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	if _, err := internal.ParseSessionID(sessionID); err != nil {
		return nil, ErrSessionNotFound
	}

	start := e.now()
	sess, err := e.sessionStore.Get(ctx, sessionID, start)
	e.observeStore(start)
	if err != nil {
		return nil, mapSessionError(err)
	}
	return sess, nil
}

// UpdateSession replaces the stored record with sess. It fails with
// ErrSessionConflict if the record changed since sess was read.
func (e *Engine) UpdateSession(ctx context.Context, sess *session.Session) error {
	if err := e.ready(); err != nil {
		return err
	}
	if sess == nil || sess.ID == "" {
		return ErrSessionNotFound
	}

	start := e.now()
	err := e.sessionStore.Replace(ctx, sess, start)
	e.observeStore(start)
	if errors.Is(err, session.ErrVersionConflict) {
		e.metricInc(MetricSessionConflict)
	}
	return mapSessionError(err)
}

// DeleteSession removes a session. Deleting an absent session succeeds.
func (e *Engine) DeleteSession(ctx context.Context, sessionID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if sessionID == "" {
		return nil
	}
	return mapSessionError(e.sessionStore.Delete(ctx, sessionID))
}

// ResolveSession returns the live session for sessionID. When there is none
// it starts a public session carrying the entry notice and reports
// fresh=true; the caller then sets the cookie and sends the visitor to the
// entry page. A zero entry notice defaults to NoticeSessionExpired.
func (e *Engine) ResolveSession(ctx context.Context, sessionID string, entry Notice) (*session.Session, bool, error) {
	sess, err := e.GetSession(ctx, sessionID)
	if err == nil {
		return sess, false, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return nil, false, err
	}

	if sessionID != "" {
		e.metricInc(MetricSessionExpired)
		e.emitAudit(ctx, auditEventSessionExpired, false, "", sessionID, ErrSessionNotFound, nil)
	}

	if !entry.Valid() {
		entry = Notice{Kind: NoticeSessionExpired}
	}

	fresh, err := e.startSession(ctx, RolePublicViewer, "", entry)
	if err != nil {
		return nil, false, err
	}
	e.metricInc(MetricFlashSet)
	return fresh, true, nil
}

// Visit returns the live session for sessionID or silently starts a public
// one. Landing pages use it where an expired session is not worth a notice.
func (e *Engine) Visit(ctx context.Context, sessionID string) (*session.Session, bool, error) {
	sess, err := e.GetSession(ctx, sessionID)
	if err == nil {
		return sess, false, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return nil, false, err
	}
	fresh, err := e.StartSession(ctx, RolePublicViewer, "")
	if err != nil {
		return nil, false, err
	}
	return fresh, true, nil
}

// mutate runs fn against the stored session under the store's optimistic
// transaction and returns the persisted result.
func (e *Engine) mutate(ctx context.Context, sessionID string, fn func(*session.Session) error) (*session.Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	start := e.now()
	sess, err := e.sessionStore.Mutate(ctx, sessionID, start, fn)
	e.observeStore(start)
	if errors.Is(err, session.ErrVersionConflict) {
		e.metricInc(MetricSessionConflict)
	}
	if err != nil {
		return nil, mapSessionError(err)
	}
	return sess, nil
}

func (e *Engine) newSessionID() (string, error) {
	if e.idSource != nil {
		return e.idSource()
	}
	sid, err := internal.NewSessionID()
	if err != nil {
		return "", err
	}
	return sid.String(), nil
}

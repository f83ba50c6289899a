package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/shopfront/internal/domain/session"
)

// storefrontFunc handles one storefront request against the loaded session.
// Mutations to st are persisted only when it returns without error.
type storefrontFunc func(r *http.Request, st *session.State) (reply, error)

func (h *Handler) storefront(fn storefrontFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		uid, err := userID(r, h.cfg.UserHeader)
		if err != nil {
			writeError(w, r, err)
			return
		}
		st, err := h.loadSession(ctx, r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if st.UserID != 0 && st.UserID != uid {
			// Another identity is using this browser.
			zctx.From(ctx).Info("Session identity changed, starting fresh",
				zap.Int64("previous_user_id", st.UserID),
				zap.Int64("user_id", uid),
			)
			if err := h.relinquish(ctx, st); err != nil {
				writeError(w, r, err)
				return
			}
			st = session.New()
		}
		st.UserID = uid

		rep, err := fn(r, st)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := h.Sessions.Save(ctx, st); err != nil {
			err = errors.Wrap(err, "save session")
			if rep.onSaveError == nil {
				writeError(w, r, err)
				return
			}
			zctx.From(ctx).Warn("Session not saved, settling side effects", zap.Error(err))
			if rep, err = rep.onSaveError(ctx, err); err != nil {
				writeError(w, r, err)
				return
			}
		}
		if rep.expireCookie {
			http.SetCookie(w, h.expiredCookie())
		} else {
			http.SetCookie(w, h.cookie(st.ID))
		}
		rep.write(w)
	}
}

// relinquish hands back what the previous identity's session holds outside
// of it: a pending loyalty redemption is credited back and the session is
// dropped. If the session cannot be dropped the redemption is taken again,
// so the ledger keeps matching whatever session survives.
func (h *Handler) relinquish(ctx context.Context, st *session.State) error {
	pending := st.LoyaltyRedemption
	if _, err := h.Checkout.CancelLoyalty(ctx, st); err != nil {
		return errors.Wrap(err, "restore previous redemption")
	}
	if err := h.Sessions.Delete(ctx, st.ID); err != nil {
		if pending != nil {
			if _, rerr := h.Checkout.ApplyLoyalty(ctx, st, pending.Points); rerr != nil {
				zctx.From(ctx).Error("Failed to re-apply redemption",
					zap.Int64("user_id", st.UserID),
					zap.Int64("points", pending.Points),
					zap.Error(rerr),
				)
			}
		}
		return errors.Wrap(err, "drop previous session")
	}
	return nil
}

func requireUser(fn storefrontFunc) storefrontFunc {
	return func(r *http.Request, st *session.State) (reply, error) {
		if st.UserID == 0 {
			return reply{}, errUnauthenticated
		}
		return fn(r, st)
	}
}

func (h *Handler) loadSession(ctx context.Context, r *http.Request) (*session.State, error) {
	c, err := r.Cookie(h.cfg.SessionCookie)
	if err != nil || c.Value == "" {
		return session.New(), nil
	}
	st, err := h.Sessions.Load(ctx, c.Value)
	switch {
	case errors.Is(err, session.ErrNotFound):
		return session.New(), nil
	case err != nil:
		return nil, errors.Wrap(err, "load session")
	}
	return st, nil
}

func (h *Handler) cookie(id string) *http.Cookie {
	return &http.Cookie{
		Name:     h.cfg.SessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(h.cfg.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *Handler) expiredCookie() *http.Cookie {
	c := h.cookie("")
	c.MaxAge = -1
	return c
}

// userID reads the identity set by the upstream auth layer. An absent
// header means an anonymous visitor.
func userID(r *http.Request, header string) (int64, error) {
	v := r.Header.Get(header)
	if v == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, errUnauthenticated
	}
	return id, nil
}

package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/shopfront/internal/domain/loyalty"
	"github.com/xenking/shopfront/internal/domain/order"
	"github.com/xenking/shopfront/internal/domain/product"
	"github.com/xenking/shopfront/internal/domain/promo"
)

// reply is buffered so the session can be saved before anything reaches
// the client.
type reply struct {
	status   int
	location string
	body     []byte

	// onSaveError runs when the session could not be persisted after a
	// handler already changed state outside the session. It undoes or
	// settles that change and returns the reply to send instead.
	onSaveError func(ctx context.Context, err error) (reply, error)
	// expireCookie drops the client's session cookie.
	expireCookie bool
}

func redirect(to string) reply {
	return reply{status: http.StatusFound, location: to}
}

func jsonReply(status int, e *jx.Encoder) reply {
	return reply{status: status, body: e.Bytes()}
}

func (rp reply) write(w http.ResponseWriter) {
	if rp.location != "" {
		w.Header().Set("Location", rp.location)
	}
	if rp.body != nil {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(rp.status)
	if rp.body != nil {
		_, _ = w.Write(rp.body)
	}
}

// httpError carries an explicit status and a client-safe message.
type httpError struct {
	status int
	msg    string
}

func (e *httpError) Error() string { return e.msg }

var (
	errUnauthenticated = &httpError{status: http.StatusUnauthorized, msg: "authentication required"}
	errForbidden       = &httpError{status: http.StatusForbidden, msg: "insufficient scope"}
)

func badRequest(format string, args ...any) error {
	return &httpError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

func statusFor(err error) (int, string) {
	var he *httpError
	if errors.As(err, &he) {
		return he.status, he.msg
	}
	switch {
	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, promo.ErrNotFound),
		errors.Is(err, loyalty.ErrPlanNotFound),
		errors.Is(err, loyalty.ErrUserNotFound),
		errors.Is(err, loyalty.ErrSchemaMissing):
		return http.StatusNotFound, rootMessage(err)
	case errors.Is(err, promo.ErrCodeTaken):
		return http.StatusConflict, promo.ErrCodeTaken.Error()
	case errors.Is(err, product.ErrNegativeStock),
		errors.Is(err, loyalty.ErrNegativeBalance):
		return http.StatusBadRequest, rootMessage(err)
	}
	return http.StatusInternalServerError, "internal error"
}

// rootMessage strips wrapping context so internal call sites never leak
// into responses.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Int(status) })
		e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
	})
	jsonReply(status, &e).write(w)
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid id %q", raw)
	}
	return id, nil
}

package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/shopfront/internal/domain/auth"
	"github.com/xenking/shopfront/internal/domain/loyalty"
	"github.com/xenking/shopfront/internal/domain/promo"
)

// APIKeyHeader carries the raw admin API key.
const APIKeyHeader = "X-API-Key"

const maxBodyBytes = 1 << 20

type adminFunc func(r *http.Request) (reply, error)

func (h *Handler) admin(fn adminFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, err := fn(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		rep.write(w)
	}
}

func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		info, err := h.Keys.Authenticate(ctx, r.Header.Get(APIKeyHeader))
		if err != nil {
			writeError(w, r, &httpError{status: http.StatusUnauthorized, msg: auth.ErrUnauthorized.Error()})
			return
		}
		if !info.HasScope(auth.ScopeAdmin) {
			writeError(w, r, errForbidden)
			return
		}
		ctx = zctx.Base(ctx, zctx.From(ctx).With(zap.String("api_key", info.Name)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func noContent() reply {
	return reply{status: http.StatusNoContent}
}

func created(id int64) reply {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(id) })
	})
	return jsonReply(http.StatusCreated, &e)
}

func readBody(r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	return data, nil
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.Null:
		return decimal.Zero, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(string(n))
	}
}

func decodeTime(d *jx.Decoder) (*time.Time, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func decodePromo(data []byte) (*promo.Promo, error) {
	p := &promo.Promo{Active: true}
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			p.Code, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		case "kind":
			var kind string
			kind, err = d.Str()
			p.Kind = promo.Kind(kind)
		case "amount":
			p.Amount, err = decodeDecimal(d)
		case "min_subtotal":
			p.MinSubtotal, err = decodeDecimal(d)
		case "starts_at":
			p.StartsAt, err = decodeTime(d)
		case "ends_at":
			p.EndsAt, err = decodeTime(d)
		case "max_uses":
			p.MaxUses, err = d.Int()
		case "per_user_limit":
			p.PerUserLimit, err = d.Int()
		case "active":
			p.Active, err = d.Bool()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return nil, badRequest("invalid promo: %v", err)
	}
	if err := promo.Normalize(p); err != nil {
		return nil, badRequest("invalid promo: %v", err)
	}
	return p, nil
}

func decodePlan(data []byte) (*loyalty.Plan, error) {
	p := &loyalty.Plan{Active: true}
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			p.Name, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		case "points_multiplier":
			p.PointsMultiplier, err = decodeDecimal(d)
		case "annual_fee":
			p.AnnualFee, err = decodeDecimal(d)
		case "active":
			p.Active, err = d.Bool()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return nil, badRequest("invalid plan: %v", err)
	}
	if err := loyalty.ValidatePlan(p); err != nil {
		return nil, badRequest("invalid plan: %v", err)
	}
	return p, nil
}

// decodeInt reads the single integer field of a {"<field>": n} body.
func decodeInt(data []byte, field string) (int64, error) {
	var (
		v    int64
		seen bool
	)
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		if key != field {
			return d.Skip()
		}
		seen = true
		var err error
		v, err = d.Int64()
		return err
	})
	if err != nil {
		return 0, badRequest("invalid body: %v", err)
	}
	if !seen {
		return 0, badRequest("%s is required", field)
	}
	return v, nil
}

func (h *Handler) listPromos(r *http.Request) (reply, error) {
	promos, err := h.Promos.List(r.Context())
	if err != nil {
		return reply{}, err
	}
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("promos", func(e *jx.Encoder) {
			e.ArrStart()
			for _, p := range promos {
				encodePromo(e, p)
			}
			e.ArrEnd()
		})
	})
	return jsonReply(http.StatusOK, &e), nil
}

func (h *Handler) createPromo(r *http.Request) (reply, error) {
	data, err := readBody(r)
	if err != nil {
		return reply{}, err
	}
	p, err := decodePromo(data)
	if err != nil {
		return reply{}, err
	}
	id, err := h.Promos.Create(r.Context(), p)
	if err != nil {
		return reply{}, err
	}
	zctx.From(r.Context()).Info("Promo created", zap.Int64("id", id), zap.String("code", p.Code))
	return created(id), nil
}

func (h *Handler) updatePromo(r *http.Request) (reply, error) {
	id, err := pathID(r)
	if err != nil {
		return reply{}, err
	}
	data, err := readBody(r)
	if err != nil {
		return reply{}, err
	}
	p, err := decodePromo(data)
	if err != nil {
		return reply{}, err
	}
	p.ID = id
	if err := h.Promos.Update(r.Context(), p); err != nil {
		return reply{}, err
	}
	return noContent(), nil
}

func (h *Handler) deletePromo(r *http.Request) (reply, error) {
	id, err := pathID(r)
	if err != nil {
		return reply{}, err
	}
	if err := h.Promos.Delete(r.Context(), id); err != nil {
		return reply{}, err
	}
	return noContent(), nil
}

func (h *Handler) setStock(r *http.Request) (reply, error) {
	id, err := pathID(r)
	if err != nil {
		return reply{}, err
	}
	data, err := readBody(r)
	if err != nil {
		return reply{}, err
	}
	stock, err := decodeInt(data, "stock")
	if err != nil {
		return reply{}, err
	}
	if err := h.Stock.SetStock(r.Context(), id, int(stock)); err != nil {
		return reply{}, err
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("product_id", func(e *jx.Encoder) { e.Int64(id) })
		e.Field("stock", func(e *jx.Encoder) { e.Int64(stock) })
	})
	return jsonReply(http.StatusOK, &e), nil
}

func (h *Handler) listPlans(r *http.Request) (reply, error) {
	plans, err := h.Plans.ListPlans(r.Context())
	if err != nil {
		return reply{}, err
	}
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("plans", func(e *jx.Encoder) {
			e.ArrStart()
			for _, p := range plans {
				encodePlan(e, p)
			}
			e.ArrEnd()
		})
	})
	return jsonReply(http.StatusOK, &e), nil
}

func (h *Handler) createPlan(r *http.Request) (reply, error) {
	data, err := readBody(r)
	if err != nil {
		return reply{}, err
	}
	p, err := decodePlan(data)
	if err != nil {
		return reply{}, err
	}
	id, err := h.Plans.CreatePlan(r.Context(), p)
	if err != nil {
		return reply{}, err
	}
	return created(id), nil
}

func (h *Handler) updatePlan(r *http.Request) (reply, error) {
	id, err := pathID(r)
	if err != nil {
		return reply{}, err
	}
	data, err := readBody(r)
	if err != nil {
		return reply{}, err
	}
	p, err := decodePlan(data)
	if err != nil {
		return reply{}, err
	}
	p.ID = id
	if err := h.Plans.UpdatePlan(r.Context(), p); err != nil {
		return reply{}, err
	}
	return noContent(), nil
}

func (h *Handler) deletePlan(r *http.Request) (reply, error) {
	id, err := pathID(r)
	if err != nil {
		return reply{}, err
	}
	if err := h.Plans.DeletePlan(r.Context(), id); err != nil {
		return reply{}, err
	}
	return noContent(), nil
}

func (h *Handler) setPoints(r *http.Request) (reply, error) {
	id, err := pathID(r)
	if err != nil {
		return reply{}, err
	}
	data, err := readBody(r)
	if err != nil {
		return reply{}, err
	}
	points, err := decodeInt(data, "points")
	if err != nil {
		return reply{}, err
	}
	balance, err := h.Ledger.SetBalance(r.Context(), id, points)
	if err != nil {
		return reply{}, err
	}
	zctx.From(r.Context()).Info("Loyalty balance overridden", zap.Int64("user_id", id), zap.Int64("balance", balance))

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("user_id", func(e *jx.Encoder) { e.Int64(id) })
		e.Field("balance", func(e *jx.Encoder) { e.Int64(balance) })
	})
	return jsonReply(http.StatusOK, &e), nil
}

func (h *Handler) listInvoices(r *http.Request) (reply, error) {
	invoices, err := h.Orders.ListInvoices(r.Context())
	if err != nil {
		return reply{}, err
	}
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("invoices", func(e *jx.Encoder) {
			e.ArrStart()
			for _, inv := range invoices {
				encodeInvoice(e, inv)
			}
			e.ArrEnd()
		})
	})
	return jsonReply(http.StatusOK, &e), nil
}

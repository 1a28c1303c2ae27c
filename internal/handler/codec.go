package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/recycle-market/internal/domain/i18n"
)

// maxBodySize bounds request bodies.
const maxBodySize = 1 << 20

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// decodeBody reads a JSON object from the request, calling field for every
// key. Unknown keys are left to field to skip.
func decodeBody(w http.ResponseWriter, r *http.Request, field func(d *jx.Decoder, key string) error) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return badRequest("read body: %v", err)
	}
	if len(data) == 0 {
		return badRequest("empty body")
	}
	if err := jx.DecodeBytes(data).Obj(field); err != nil {
		return &requestError{err: err}
	}
	return nil
}

func encodeDecimal(e *jx.Encoder, d decimal.Decimal) {
	e.Raw([]byte(d.String()))
}

// encodeMoney writes an amount with exactly two decimals.
func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Raw([]byte(d.StringFixed(2)))
}

// decodeDecimal accepts a JSON number or a numeric string.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		raw, err := d.Raw()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(raw.String())
	default:
		return decimal.Zero, errors.New("expected a number")
	}
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

func encodeText(e *jx.Encoder, t i18n.Text) {
	e.ObjStart()
	e.FieldStart("en")
	e.Str(t.En)
	e.FieldStart("ar")
	e.Str(t.Ar)
	e.ObjEnd()
}

// optStr writes key only when v is non-empty.
func optStr(e *jx.Encoder, key, v string) {
	if v == "" {
		return
	}
	e.FieldStart(key)
	e.Str(v)
}

func optTime(e *jx.Encoder, key string, t *time.Time) {
	if t == nil {
		return
	}
	e.FieldStart(key)
	encodeTime(e, *t)
}

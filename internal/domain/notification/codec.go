package notification

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Encode writes the event contract of n: everything but delivery bookkeeping.
func (n Notification) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(n.ID)
	e.FieldStart("userId")
	e.Str(n.UserID)
	e.FieldStart("type")
	e.Str(string(n.Type))
	e.FieldStart("title")
	encodeText(e, n.Title.En, n.Title.Ar)
	e.FieldStart("body")
	encodeText(e, n.Body.En, n.Body.Ar)
	if n.OrderID != "" {
		e.FieldStart("orderId")
		e.Str(n.OrderID)
	}
	if len(n.Payload) > 0 {
		e.FieldStart("payload")
		e.ObjStart()
		for k, v := range n.Payload {
			e.FieldStart(k)
			e.Str(v)
		}
		e.ObjEnd()
	}
	e.FieldStart("isRead")
	e.Bool(n.IsRead)
	e.FieldStart("createdAt")
	e.Str(n.CreatedAt.Format(time.RFC3339Nano))
	e.ObjEnd()
}

// MarshalJSON implements json.Marshaler.
func (n Notification) MarshalJSON() ([]byte, error) {
	var e jx.Encoder
	n.Encode(&e)
	return e.Bytes(), nil
}

// Decode reads a notification written by Encode.
func (n *Notification) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			n.ID, err = d.Str()
		case "userId":
			n.UserID, err = d.Str()
		case "type":
			var s string
			s, err = d.Str()
			n.Type = Type(s)
		case "title":
			n.Title.En, n.Title.Ar, err = decodeText(d)
		case "body":
			n.Body.En, n.Body.Ar, err = decodeText(d)
		case "orderId":
			n.OrderID, err = d.Str()
		case "payload":
			n.Payload = make(map[string]string)
			err = d.Obj(func(d *jx.Decoder, k string) error {
				v, err := d.Str()
				n.Payload[k] = v
				return err
			})
		case "isRead":
			n.IsRead, err = d.Bool()
		case "createdAt":
			var s string
			if s, err = d.Str(); err == nil {
				n.CreatedAt, err = time.Parse(time.RFC3339Nano, s)
			}
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		return nil
	})
}

func encodeText(e *jx.Encoder, en, ar string) {
	e.ObjStart()
	e.FieldStart("en")
	e.Str(en)
	e.FieldStart("ar")
	e.Str(ar)
	e.ObjEnd()
}

func decodeText(d *jx.Decoder) (en, ar string, err error) {
	err = d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "en":
			en, err = d.Str()
		case "ar":
			ar, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	return en, ar, err
}

package redis

import (
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/recycle-market/internal/domain/cart"
	"github.com/xenking/recycle-market/internal/domain/measure"
)

func encodeLine(l cart.Line) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("itemId")
	e.Str(l.ItemID)
	e.FieldStart("nameEn")
	e.Str(l.Name.En)
	e.FieldStart("nameAr")
	e.Str(l.Name.Ar)
	e.FieldStart("categoryEn")
	e.Str(l.Category.En)
	e.FieldStart("categoryAr")
	e.Str(l.Category.Ar)
	e.FieldStart("price")
	e.Str(l.Price.String())
	e.FieldStart("points")
	e.Str(l.Points.String())
	e.FieldStart("unit")
	e.Str(l.Unit.String())
	e.FieldStart("quantity")
	e.Str(l.Quantity.String())
	e.FieldStart("image")
	e.Str(l.Image)
	e.FieldStart("addedAt")
	e.Str(l.AddedAt.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()

	return append([]byte(nil), e.Bytes()...)
}

func decodeLine(data []byte) (cart.Line, error) {
	var l cart.Line
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "itemId":
			l.ItemID, err = d.Str()
		case "nameEn":
			l.Name.En, err = d.Str()
		case "nameAr":
			l.Name.Ar, err = d.Str()
		case "categoryEn":
			l.Category.En, err = d.Str()
		case "categoryAr":
			l.Category.Ar, err = d.Str()
		case "price":
			l.Price, err = decodeDecimal(d)
		case "points":
			l.Points, err = decodeDecimal(d)
		case "quantity":
			l.Quantity, err = decodeDecimal(d)
		case "unit":
			var s string
			if s, err = d.Str(); err == nil {
				l.Unit, err = measure.Parse(s)
			}
		case "image":
			l.Image, err = d.Str()
		case "addedAt":
			var s string
			if s, err = d.Str(); err == nil {
				l.AddedAt, err = time.Parse(time.RFC3339Nano, s)
			}
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return l, err
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	s, err := d.Str()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(s)
}

// sortLines orders lines by when they were added, then by item id.
func sortLines(lines []cart.Line) {
	sort.Slice(lines, func(i, j int) bool {
		if !lines[i].AddedAt.Equal(lines[j].AddedAt) {
			return lines[i].AddedAt.Before(lines[j].AddedAt)
		}
		return lines[i].ItemID < lines[j].ItemID
	})
}

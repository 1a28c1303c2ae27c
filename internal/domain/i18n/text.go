// Package i18n holds bilingual display text captured on orders and notifications.
package i18n

// Text is an English/Arabic pair.
type Text struct {
	En string
	Ar string
}

// New returns a Text with both translations.
func New(en, ar string) Text {
	return Text{En: en, Ar: ar}
}

// IsZero reports whether both translations are empty.
func (t Text) IsZero() bool {
	return t.En == "" && t.Ar == ""
}

// WithFallback returns t with a missing Arabic text replaced by the English one.
func (t Text) WithFallback() Text {
	if t.Ar == "" {
		t.Ar = t.En
	}
	return t
}

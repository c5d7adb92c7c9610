// Package keyboard builds inline reply markups.
package keyboard

import tele "gopkg.in/telebot.v4"

// Button is one inline button: the label, the callback unique key and an
// optional payload.
type Button struct {
	Text   string
	Unique string
	Data   string
}

// Btn is shorthand for Button{text, unique, data}.
func Btn(text, unique, data string) Button {
	return Button{Text: text, Unique: unique, Data: data}
}

// Builder accumulates rows of inline buttons.
type Builder struct {
	rows [][]Button
}

// Inline starts an empty inline keyboard.
func Inline() *Builder { return &Builder{} }

// Row appends a row; empty rows are ignored.
func (b *Builder) Row(btns ...Button) *Builder {
	if len(btns) > 0 {
		b.rows = append(b.rows, btns)
	}
	return b
}

// Markup renders the rows. Telebot adds the "\f" envelope to Unique when the
// markup is sent.
func (b *Builder) Markup() *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(b.rows))
	for _, row := range b.rows {
		r := make(tele.Row, 0, len(row))
		for _, btn := range row {
			r = append(r, markup.Data(btn.Text, btn.Unique, btn.Data))
		}
		rows = append(rows, r)
	}
	markup.Inline(rows...)
	return markup
}

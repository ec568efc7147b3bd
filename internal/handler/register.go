package handler

import "github.com/JonMunkholm/docredact/internal/core"

// All returns one instance of every built-in handler.
func All() []core.Handler {
	return []core.Handler{
		NewPlainText(),
		NewMarkdown(),
		NewDelimited(),
		NewTabular(),
		NewSlideDeck(),
		NewPaginatedDocument(),
	}
}

// RegisterAll registers every built-in handler on reg under its format.
func RegisterAll(reg *core.Registry) {
	for _, h := range All() {
		reg.Register(h.Format(), h)
	}
}

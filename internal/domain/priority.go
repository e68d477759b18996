package domain

// DefaultTieBreak is the category slug order used after score and time.
var DefaultTieBreak = []string{"math", "english", "bangla", "ict", "general-knowledge"}

// TieBreak is an ordered list of category slugs. Earlier slugs weigh more.
type TieBreak []string

// OrDefault returns t, or the default order when t is empty.
func (t TieBreak) OrDefault() TieBreak {
	if len(t) == 0 {
		return TieBreak(DefaultTieBreak)
	}
	return t
}

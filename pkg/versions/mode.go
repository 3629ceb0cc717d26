package versions

import "strings"

// Mode classifies which rendering strategy a dependency belongs to.
type Mode string

// Known modes. Any other value is kept verbatim and never matches.
const (
	ModeAll   Mode = "all"
	ModeLit   Mode = "lit"
	ModeReact Mode = "react"
)

// ParseMode normalizes a raw "mode" value. Blank input means [ModeAll].
func ParseMode(raw string) Mode {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ModeAll
	}
	return Mode(raw)
}

// IncludedByMode reports whether a dependency with the given mode belongs in
// the resolved set.
//
// Dependencies for all modes are always included. Otherwise nothing
// mode-specific is included when web components are excluded, React mode
// takes only "react" entries and the default Lit mode takes only "lit"
// entries. Unknown modes are never included.
func IncludedByMode(mode Mode, reactEnabled, excludeWebComponents bool) bool {
	switch {
	case mode == "" || mode == ModeAll:
		return true
	case excludeWebComponents:
		return false
	case reactEnabled:
		return mode == ModeReact
	default:
		return mode == ModeLit
	}
}

package cli

import "strings"

// ANSI color helpers, used sparingly for swssctl status output.

func Green(s string) string  { return "\033[32m" + s + "\033[0m" }
func Yellow(s string) string { return "\033[33m" + s + "\033[0m" }
func Red(s string) string    { return "\033[31m" + s + "\033[0m" }
func Bold(s string) string   { return "\033[1m" + s + "\033[0m" }
func Dim(s string) string    { return "\033[2m" + s + "\033[0m" }

// DotPad pads name with dots to the given width.
// Example: DotPad("PORT0", 20) -> "PORT0 .............."
func DotPad(name string, width int) string {
	if width <= 0 || len(name) >= width-1 {
		return name
	}
	dots := width - len(name) - 1
	return name + " " + strings.Repeat(".", dots)
}

// goodStatus and badStatus enumerate the STATE_DB/APPL_DB status
// vocabulary worth recognizing in "dump" output: port init state
// (spec.md §4.5) and BFD session state (spec.md §4.6).
var (
	goodStatus = map[string]bool{
		"configdone": true, "up": true, "active": true, "established": true, "ok": true,
	}
	badStatus = map[string]bool{
		"configmissing": true, "down": true, "failed": true, "admindown": true,
	}
)

// StatusColor colors a status-like field value green/red by the
// recognized vocabulary above, dims an empty placeholder, and leaves
// anything else uncolored. Matching is case-insensitive.
func StatusColor(s string) string {
	switch {
	case goodStatus[strings.ToLower(s)]:
		return Green(s)
	case badStatus[strings.ToLower(s)]:
		return Red(s)
	case s == "" || s == "-":
		return Dim(s)
	default:
		return s
	}
}

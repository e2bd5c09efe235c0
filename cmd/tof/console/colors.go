package console

import "github.com/fatih/color"

// Available ANSI colors
var (
	Yellow = color.New(color.FgYellow).SprintFunc()
	Red    = color.New(color.FgRed).SprintFunc()
	Green  = color.New(color.FgGreen).SprintFunc()
	White  = color.New(color.FgHiWhite).SprintFunc()
	Bold   = color.New(color.Bold).SprintFunc()
)

// Level colors a value by a none/warning/error level (0, 1, 2 and above).
func Level(level int, a ...interface{}) string {
	switch {
	case level <= 0:
		return Green(a...)
	case level == 1:
		return Yellow(a...)
	default:
		return Red(a...)
	}
}

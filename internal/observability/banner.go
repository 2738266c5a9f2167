package observability

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

const (
	colorReset    = "\033[0m"
	colorNeonCyan = "\033[96m"
	colorNeonMag  = "\033[95m"
)

const banner = `
    __         __                         __
   / /____  __/ /_  ___  ____ ______/ /__
  / //_/ / / / __ \/ _ \/ __ ` + "`" + `/ ___/ //_/
 / ,< / /_/ / /_/ /  __/ /_/ (__  ) ,<
/_/|_|\__,_/_.___/\___/\__,_/____/_/|_|

      >> READ-ONLY CLUSTER ASSISTANT <<
`

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func termWidth(f *os.File) int {
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

// PrintBanner writes the centered startup banner to f. Colors are only used
// when f is a terminal.
func PrintBanner(f *os.File, lines ...string) {
	color := IsTerminal(f)
	width := termWidth(f)
	writeCentered(f, width, color, colorNeonCyan, strings.Split(banner, "\n"))
	writeCentered(f, width, color, colorNeonMag, lines)
	fmt.Fprintln(f)
}

func writeCentered(w io.Writer, width int, color bool, c string, lines []string) {
	for _, l := range lines {
		padding := (width - len(l)) / 2
		if padding < 0 {
			padding = 0
		}
		if color {
			fmt.Fprintf(w, "%s%s%s%s\n", strings.Repeat(" ", padding), c, l, colorReset)
			continue
		}
		fmt.Fprintf(w, "%s%s\n", strings.Repeat(" ", padding), l)
	}
}

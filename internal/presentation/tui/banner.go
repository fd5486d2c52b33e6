package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

var bannerLines = []string{
	`                    _            _             `,
	`  ___ ___  _ __   __| |_   _  ___| |_ ___  _ __ `,
	` / __/ _ \| '_ \ / _' | | | |/ __| __/ _ \| '__|`,
	`| (_| (_) | | | | (_| | |_| | (__| || (_) | |   `,
	` \___\___/|_| |_|\__,_|\__,_|\___|\__\___/|_|   `,
}

var bannerColors = []string{"#38bdf8", "#60a5fa", "#818cf8", "#a78bfa", "#c084fc"}

// PrintBanner writes the banner and version to w, coloured when w is a
// terminal.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	fmt.Fprintln(out)
	for i, line := range bannerLines {
		fmt.Fprintln(out, out.String(strings.TrimRight(line, " ")).Foreground(out.Color(bannerColors[i%len(bannerColors)])))
	}
	fmt.Fprintln(out, out.String("  flow graph conductor "+strings.TrimSpace(version)).Faint())
	fmt.Fprintln(out)
}

package theme

import (
	"fmt"
	"io"
	"os"
)

// Banner returns the CLI banner. Colors are dropped when color is false.
func Banner(color bool) string {
	cyan, magenta, reset := "\033[36m", "\033[35m", "\033[0m"
	if !color {
		cyan, magenta, reset = "", "", ""
	}
	return "" +
		cyan + "   ▁▂▃▅▆▇  " + reset + magenta + "SOCIALMETRICS" + reset + cyan + "  ▇▆▅▃▂▁\n" + reset +
		"   daily profile snapshots, cached and charted\n"
}

// PrintBanner writes the banner to stdout, colored only when NO_COLOR is unset.
func PrintBanner() {
	FprintBanner(os.Stdout, os.Getenv("NO_COLOR") == "")
}

func FprintBanner(w io.Writer, color bool) {
	fmt.Fprint(w, Banner(color))
}

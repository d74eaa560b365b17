// Package banner prints the startup banner of memoire serve.
package banner

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// Options controls where the banner goes and how it is animated.
type Options struct {
	LineDelay time.Duration // pause after each art line; zero prints at once
	Details   []string      // extra lines printed under the version, e.g. the listen address
}

var bannerArt = strings.Join([]string{
	` _ __ ___   ___ _ __ ___   ___ (_)_ __ ___ `,
	`| '_ ' _ \ / _ \ '_ ' _ \ / _ \| | '__/ _ \`,
	`| | | | | |  __/ | | | | | (_) | | | |  __/`,
	`|_| |_| |_|\___|_| |_| |_|\___/|_|_|  \___|`,
}, "\n")

// Print writes the banner, the version line and opts.Details to w.
func Print(w io.Writer, version string, opts Options) {
	for _, line := range splitLines(bannerArt) {
		fmt.Fprintln(w, line)
		if opts.LineDelay > 0 {
			time.Sleep(opts.LineDelay)
		}
	}
	fmt.Fprintf(w, "  thesis writing agent  v%s\n", version)
	for _, d := range opts.Details {
		fmt.Fprintf(w, "  %s\n", d)
	}
	fmt.Fprintln(w)
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line == "" && out == nil {
			continue
		}
		out = append(out, line)
	}
	return out
}

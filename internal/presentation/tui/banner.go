// Package tui holds the terminal presentation bits of the arbor CLI.
package tui

import (
	"fmt"

	"github.com/muesli/termenv"
)

// PrintBanner outputs the arbor ASCII art banner with a green gradient.
func PrintBanner() {
	p := termenv.ColorProfile()
	s1 := termenv.String("             _").Foreground(p.Color("#a3e635"))
	s2 := termenv.String("   __ _ _ __| |__   ___  _ __").Foreground(p.Color("#4ade80"))
	s3 := termenv.String("  / _` | '__| '_ \\ / _ \\| '__|").Foreground(p.Color("#34d399"))
	s4 := termenv.String(" | (_| | |  | |_) | (_) | |").Foreground(p.Color("#2dd4bf"))
	s5 := termenv.String("  \\__,_|_|  |_.__/ \\___/|_|").Foreground(p.Color("#22d3ee"))

	fmt.Println()
	fmt.Println(s1)
	fmt.Println(s2)
	fmt.Println(s3)
	fmt.Println(s4)
	fmt.Println(s5)
	fmt.Println()
}

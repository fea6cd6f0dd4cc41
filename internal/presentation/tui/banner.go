package tui

import (
	"fmt"

	"github.com/muesli/termenv"
)

// PrintBanner outputs the EpiVigil ASCII banner.
func PrintBanner() {
	p := termenv.ColorProfile()
	// Teal-to-blue gradient
	s1 := termenv.String(`  ______     _ __      ___      _ _ `).Foreground(p.Color("#34d399"))
	s2 := termenv.String(` |  ____|   (_)\ \    / (_)    (_) |`).Foreground(p.Color("#2dd4bf"))
	s3 := termenv.String(` | |__   _ __ _ \ \  / / _  __ _ _| |`).Foreground(p.Color("#22d3ee"))
	s4 := termenv.String(` |  __| | '_ \ | \ \/ / | |/ _' | | |`).Foreground(p.Color("#38bdf8"))
	s5 := termenv.String(` | |____| |_) | |\  /  | | (_| | | |`).Foreground(p.Color("#60a5fa"))
	s6 := termenv.String(` |______| .__/|_| \/   |_|\__, |_|_|`).Foreground(p.Color("#818cf8"))
	s7 := termenv.String(`        | |               __/ |`).Foreground(p.Color("#818cf8"))
	s8 := termenv.String(`        |_|              |___/`).Foreground(p.Color("#818cf8"))

	fmt.Println()
	fmt.Println(s1)
	fmt.Println(s2)
	fmt.Println(s3)
	fmt.Println(s4)
	fmt.Println(s5)
	fmt.Println(s6)
	fmt.Println(s7)
	fmt.Println(s8)
	fmt.Println()
}

// Package main provides the deckcheck binary entry point.
// DeckCheck is a presentation coach that renders a slide deck, grounds an
// LLM conversation in tool-computed slide metrics, and extracts a structured
// quality assessment.
package main

import (
	"fmt"
	"os"
	"runtime"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

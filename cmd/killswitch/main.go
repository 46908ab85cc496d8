package main

import (
	"fmt"
	"os"

	"killswitch/internal/app"
)

func main() {
	application, err := app.NewApplication()
	if err != nil {
		fmt.Fprintf(os.Stderr, "killswitch: %v\n", err)
		os.Exit(1)
	}
	if err := application.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "killswitch: %v\n", err)
		os.Exit(1)
	}
}

// Package main is the entry point for MediaMetadata.
package main

import (
	"log"
	"os"

	"media-metadata-go/internal/app"
)

func main() {
	// Create and initialize application
	application, err := app.New()
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	// Run the server
	if err := application.Run(); err != nil {
		log.Printf("server error: %v", err)
		application.Shutdown()
		os.Exit(1)
	}

	application.Shutdown()
}

package main

import (
	"log"

	"ledgerisland/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}

package main

import (
	"log"
	"os"
)

func main() {
	app := newApp(os.Stdout, os.Stdin)

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

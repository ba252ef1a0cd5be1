package main

import "go-tablelogger/internal/app"

func main() {
	app.Run()
}

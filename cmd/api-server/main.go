package main

import (
	"github.com/go-faster/sdk/app"

	server "github.com/xenking/atelier-orders/internal/app"
)

func main() {
	app.Run(server.Start)
}

// Package main is the entry point of the budget question answering service.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/budgetqa/cmd/budgetqa/app"
)

func main() {
	app.NewApp().Run()
}

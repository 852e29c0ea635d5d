package main

import "github.com/Zechen-Wang/covey.town/cmd/covey/cmd"

func main() {
	if err := cmd.Execute(); err != nil {
		panic(err)
	}
}

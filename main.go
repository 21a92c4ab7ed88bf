package main

import "github.com/clipdeck/clipdeck/cmd"

func main() {
	cmd.Execute()
}

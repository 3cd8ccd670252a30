package main

import (
	"thought_engine/cmd"
)

func main() {
	cmd.Execute()
}

package main

import (
	"crowdbeat/cmd"
)

func main() {
	cmd.Execute()
}

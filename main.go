package main

import "mixflow/cmd"

func main() {
	cmd.Execute()
}

package main

import "tidekv/cmd"

func main() {
	cmd.Execute()
}

package main

import "campuscrawl/cmd"

func main() {
	cmd.Execute()
}

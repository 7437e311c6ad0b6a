package main

import "pbftledger/cmd"

func main() {
	cmd.Execute()
}

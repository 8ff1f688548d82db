package main

import "otherly/client/otherly-cli/cmd"

func main() {
	cmd.Execute()
}

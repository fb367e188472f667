package main

import "Leviosa/client/leviosa-cli/cmd"

func main() {
	cmd.Execute()
}

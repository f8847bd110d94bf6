package main

import "replisync/cmd"

func main() {
	cmd.Execute()
}

package main

import "propsync/cmd/client/cmd"

func main() {
	cmd.Execute()
}

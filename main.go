package main

import "github.com/timvw/pane-mirror/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/arwahdevops/tablesync/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/dbup-tool/dbup/cmd"

func main() {
	cmd.Execute()
}

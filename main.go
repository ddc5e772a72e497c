package main

import "github.com/linkmond/linkmond/cmd"

func main() {
	cmd.Execute()
}

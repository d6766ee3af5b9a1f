package main

import "swiftconvert/cmd"

func main() {
	cmd.Execute()
}

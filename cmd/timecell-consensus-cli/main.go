package main

import "os"

func main() {
	runFromStdin(os.Stdin, os.Stdout)
}

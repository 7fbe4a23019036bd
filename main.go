package main

import (
	"os"

	"heicconv/codec"
)

func main() {
	err := Execute()
	codec.Shutdown()

	if err != nil {
		os.Stderr.WriteString("heicconv: " + err.Error() + "\n")
		os.Exit(1)
	}
}

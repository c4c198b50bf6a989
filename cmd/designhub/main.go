package main

import (
	"os"

	"github.com/lordrhodos/apicurio-studio/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(os.Args))
}

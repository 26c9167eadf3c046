// Command rc4 encrypts or decrypts a file with RC4:
//
//	rc4 [-config file] <keyfile> <inputfile> <outputfile>
package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rc4-stream-go/internal/cli"
)

func main() {
	os.Exit(cli.Run(context.Background(), filepath.Base(os.Args[0]), os.Args[1:], os.Stdout, os.Stderr))
}

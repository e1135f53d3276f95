package main

import "github.com/goplus/coinbuild/cmd/coinbuild/internal"

func main() {
	internal.Execute()
}

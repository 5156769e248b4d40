package main

import "github.com/vietddude/allocator/internal/cli"

func main() {
	cli.Execute()
}

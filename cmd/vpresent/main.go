package main

import (
	"github.com/mengelbart/vpresent/cmdmain"
	_ "github.com/mengelbart/vpresent/subcmd"
)

func main() {
	cmdmain.Main()
}

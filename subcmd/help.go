package subcmd

import (
	"flag"

	"github.com/mengelbart/vpresent/cmdmain"
)

func init() {
	cmdmain.RegisterSubCmd("help", func() cmdmain.SubCmd { return new(help) })
}

type help struct{}

// Exec implements cmdmain.SubCmd. Without arguments it prints the global
// usage, otherwise the usage of the named command.
func (h *help) Exec(cmd string, args []string) error {
	if len(args) == 0 {
		flag.Usage()
		return nil
	}
	return cmdmain.PrintCommandHelp(cmd, args[0])
}

// Help implements cmdmain.SubCmd.
func (h *help) Help() string {
	return "Print help, or help for a command"
}

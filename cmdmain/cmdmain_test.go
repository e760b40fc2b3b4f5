package cmdmain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeCmd struct {
	args []string
}

func (c *fakeCmd) Help() string { return "fake" }

func (c *fakeCmd) Exec(cmd string, args []string) error {
	c.args = args
	return nil
}

func TestPrintCommandHelp(t *testing.T) {
	c := &fakeCmd{}
	RegisterSubCmd("fake", func() SubCmd { return c })
	defer delete(subCmds, "fake")

	assert.NoError(t, PrintCommandHelp("vpresent", "fake"))
	assert.Equal(t, []string{"-h"}, c.args)
	assert.Error(t, PrintCommandHelp("vpresent", "missing"))
}

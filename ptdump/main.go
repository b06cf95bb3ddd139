// Command ptdump decodes x86-64 page tables from memory dumps.
package main

import (
	"github.com/tebeka/atexit"

	"github.com/sarchlab/ptdump/ptdump/cmd"
)

func main() {
	atexit.Exit(cmd.Execute())
}

// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"strings"

	"github.com/beevik/cmd"
)

// A command is the data stored with each entry of the command tree.
type command struct {
	path        string
	brief       string
	description string
	usage       string
	run         func(*Host, cmd.Selection) error
}

var (
	cmds     *cmd.Tree
	commands []*command // in the order they are listed by help
)

func addCommand(t *cmd.Tree, c *command) {
	name := c.path[strings.LastIndexByte(c.path, ' ')+1:]
	t.AddCommand(cmd.CommandDescriptor{
		Name:        name,
		Brief:       c.brief,
		Description: c.description,
		Usage:       c.usage,
		Data:        c,
	})
	commands = append(commands, c)
}

func init() {
	root := cmd.NewTree(cmd.TreeDescriptor{Name: "asm65"})
	addCommand(root, &command{
		path:        "help",
		brief:       "Display help for a command",
		description: "Display help for a command.",
		usage:       "help [<command>]",
		run:         (*Host).cmdHelp,
	})
	addCommand(root, &command{
		path:  "assemble",
		brief: "Assemble a source file into an object module",
		description: "Run the assembler on the specified file, writing an" +
			" object module with the same name and an .o extension." +
			" If you want verbose output, specify true as a second parameter.",
		usage: "assemble <filename> [<verbose>]",
		run:   (*Host).cmdAssemble,
	})
	addCommand(root, &command{
		path:  "link",
		brief: "Link object modules into an image",
		description: "Link the specified object modules against the base" +
			" image and the declared segments, and write the patched image" +
			" to the output file.",
		usage: "link <output> <object> [<object> ...]",
		run:   (*Host).cmdLink,
	})
	addCommand(root, &command{
		path:  "base",
		brief: "Load the base image",
		description: "Load a binary file as the original image that linked" +
			" code is patched into. The file offset at which the image" +
			" starts may be given as an option.",
		usage: "base <filename> [<offset>]",
		run:   (*Host).cmdBase,
	})

	// Segment commands
	sg := root.AddSubtree(cmd.TreeDescriptor{Name: "segment", Brief: "Segment commands"})
	addCommand(sg, &command{
		path:  "segment add",
		brief: "Declare a segment",
		description: "Declare a segment of the output image. Declarations" +
			" of the same segment in object modules are merged with it.",
		usage: "segment add <name> <size> <offset> <memory> [<bank>]",
		run:   (*Host).cmdSegmentAdd,
	})
	addCommand(sg, &command{
		path:        "segment list",
		brief:       "List segments",
		description: "List all segments declared on the host.",
		usage:       "segment list",
		run:         (*Host).cmdSegmentList,
	})

	addCommand(root, &command{
		path:  "exports",
		brief: "List exported symbols",
		description: "Display the values of all symbols exported by the" +
			" most recently linked modules.",
		usage: "exports",
		run:   (*Host).cmdExports,
	})
	addCommand(root, &command{
		path:  "report",
		brief: "Report chunk placement",
		description: "Display where each chunk of the most recent link was" +
			" placed, along with the free space left in each segment.",
		usage: "report",
		run:   (*Host).cmdReport,
	})
	addCommand(root, &command{
		path:  "disassemble",
		brief: "Disassemble code",
		description: "Disassemble machine code starting at the requested" +
			" file offset of the image. The number of instruction lines to" +
			" disassemble may be specified as an option. If no offset is" +
			" specified, the disassembly continues from where the last" +
			" disassembly left off.",
		usage: "disassemble [<offset>] [<lines>]",
		run:   (*Host).cmdDisassemble,
	})
	addCommand(root, &command{
		path:        "evaluate",
		brief:       "Evaluate an expression",
		description: "Evaluate an expression. Exported symbols may be used.",
		usage:       "evaluate <expression>",
		run:         (*Host).cmdEvaluate,
	})
	addCommand(root, &command{
		path:  "execute",
		brief: "Execute a script file",
		description: "Load a script file from disk and execute the" +
			" commands it contains.",
		usage: "execute <filename>",
		run:   (*Host).cmdExecute,
	})

	// Memory commands
	me := root.AddSubtree(cmd.TreeDescriptor{Name: "memory", Brief: "Memory commands"})
	addCommand(me, &command{
		path:  "memory dump",
		brief: "Dump the image at an offset",
		description: "Dump the contents of the image starting from the" +
			" specified file offset. The number of bytes to dump may be" +
			" specified as an option. If no offset is specified, the" +
			" dump continues from where the last dump left off.",
		usage: "memory dump [<offset>] [<bytes>]",
		run:   (*Host).cmdMemoryDump,
	})

	addCommand(root, &command{
		path:        "quit",
		brief:       "Quit the program",
		description: "Quit the program.",
		usage:       "quit",
		run:         (*Host).cmdQuit,
	})
	addCommand(root, &command{
		path:  "set",
		brief: "Set a configuration variable",
		description: "Set the value of a configuration variable. To see the" +
			" current values of all configuration variables, type set" +
			" without any arguments.",
		usage: "set [<var> <value>]",
		run:   (*Host).cmdSet,
	})

	// Add command shortcuts.
	root.AddShortcut("a", "assemble")
	root.AddShortcut("d", "disassemble")
	root.AddShortcut("e", "evaluate")
	root.AddShortcut("l", "link")
	root.AddShortcut("m", "memory dump")
	root.AddShortcut("sa", "segment add")
	root.AddShortcut("sl", "segment list")
	root.AddShortcut("?", "help")

	cmds = root
}

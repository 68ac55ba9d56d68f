// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package host implements an interactive shell around the assembler and
// linker.
//
// Within the host it is possible to declare segments, load a base image,
// assemble source files into object modules, link modules into a patched
// image, inspect the exported symbols and chunk placement of the link,
// disassemble and dump the resulting image, and evaluate expressions.
package host

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/beevik/asm65/asm"
	"github.com/beevik/asm65/cpu"
	"github.com/beevik/asm65/disasm"
	"github.com/beevik/asm65/expr"
	"github.com/beevik/asm65/link"
	"github.com/beevik/asm65/module"
	"github.com/beevik/asm65/token"
	"github.com/beevik/cmd"
	"github.com/pkg/errors"
)

var errQuit = errors.New("Exiting program")

// A Host holds the state of an assembler and linker session: declared
// segments, the base image, and the results of the most recent link.
type Host struct {
	input       *bufio.Scanner
	output      *bufio.Writer
	interactive bool
	lastCmd     *cmd.Selection
	settings    *settings
	segments    []*module.Segment
	base        []byte
	baseOffset  int
	image       []byte
	linker      *link.Linker
	exports     map[string]link.Export
	nextDisasm  int
	nextDump    int
}

// New creates a new host.
func New() *Host {
	return &Host{
		output:   bufio.NewWriter(os.Stdout),
		settings: newSettings(),
	}
}

// SetVerbose turns verbose assembly and link output on or off.
func (h *Host) SetVerbose(v bool) {
	h.settings.Verbose = v
}

// RunCommands accepts host commands from a reader and outputs the results
// to a writer. If the commands are interactive, a prompt is displayed while
// the host waits for the the next command to be entered.
func (h *Host) RunCommands(r io.Reader, w io.Writer, interactive bool) {
	h.output = bufio.NewWriter(w)
	h.run(r, interactive)
	h.flush()
}

// run processes commands from r until it is exhausted or a quit command
// is executed. It returns errQuit in the latter case.
func (h *Host) run(r io.Reader, interactive bool) error {
	prevInput, prevInteractive := h.input, h.interactive
	h.input, h.interactive = bufio.NewScanner(r), interactive
	defer func() {
		h.input, h.interactive = prevInput, prevInteractive
	}()

	if interactive {
		h.println()
	}

	for {
		h.prompt()

		line, err := h.getLine()
		if err != nil {
			return nil
		}
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		var c cmd.Selection
		if line != "" {
			c, err = cmds.Lookup(line)
			switch {
			case err == cmd.ErrNotFound:
				h.println("Command not found.")
				continue
			case err == cmd.ErrAmbiguous:
				h.println("Command is ambiguous.")
				continue
			case err != nil:
				h.printf("ERROR: %v.\n", err)
				continue
			}
		} else if h.lastCmd != nil && h.interactive {
			c = *h.lastCmd
		}

		if c.Command == nil {
			continue
		}
		cm, ok := c.Command.Data.(*command)
		if !ok {
			h.println("Incomplete command.")
			continue
		}
		h.lastCmd = &c

		if err := cm.run(h, c); err == errQuit {
			return err
		}
	}
}

func (h *Host) printf(format string, args ...any) {
	fmt.Fprintf(h.output, format, args...)
	h.flush()
}

func (h *Host) println(args ...any) {
	fmt.Fprintln(h.output, args...)
	h.flush()
}

func (h *Host) flush() {
	h.output.Flush()
}

func (h *Host) getLine() (string, error) {
	if h.input.Scan() {
		return h.input.Text(), nil
	}
	if h.input.Err() != nil {
		return "", h.input.Err()
	}
	return "", io.EOF
}

func (h *Host) prompt() {
	if h.interactive {
		h.printf("* ")
	}
}

func (h *Host) displayUsage(c *cmd.Command) {
	if cm, ok := c.Data.(*command); ok && cm.usage != "" {
		h.printf("Usage: %s\n", cm.usage)
	} else {
		h.println("<no help text>")
	}
}

//
// commands
//

func (h *Host) cmdHelp(c cmd.Selection) error {
	if len(c.Args) == 0 {
		h.println("Commands:")
		for _, cm := range commands {
			h.printf("    %-15s  %s\n", cm.path, cm.brief)
		}
		return nil
	}

	s, err := cmds.Lookup(strings.Join(c.Args, " "))
	if err == nil && s.Command != nil {
		if cm, ok := s.Command.Data.(*command); ok {
			h.printf("Usage: %s\n\n", cm.usage)
			h.printf("Description:\n%s\n\n", indentWrap(3, cm.description))
			return nil
		}
	}

	prefix := strings.ToLower(c.Args[0]) + " "
	found := false
	for _, cm := range commands {
		if strings.HasPrefix(cm.path, prefix) {
			h.printf("    %-15s  %s\n", cm.path, cm.brief)
			found = true
		}
	}
	if !found {
		h.println("Command not found.")
	}
	return nil
}

func (h *Host) cmdAssemble(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayUsage(c.Command)
		return nil
	}

	verbose := h.settings.Verbose
	if len(c.Args) > 1 {
		v, err := stringToBool(c.Args[1])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		verbose = v
	}

	h.assemble(c.Args[0], verbose)
	return nil
}

// AssembleFile assembles a source file and writes its object module next
// to it.
func (h *Host) AssembleFile(path string) error {
	return h.assemble(path, h.settings.Verbose)
}

func (h *Host) assemble(path string, verbose bool) error {
	arch, ok := cpu.ParseArchitecture(h.settings.Arch)
	if !ok {
		err := errors.Errorf("Unknown architecture: %s", h.settings.Arch)
		h.printf("%v\n", err)
		return err
	}

	opts := asm.Options{
		Verbose:         verbose,
		ReentrantScopes: h.settings.ReentrantScopes,
		Arch:            arch,
		Out:             h.output,
	}
	obj, err := asm.AssembleFile(path, opts)
	h.flush()
	if err != nil {
		h.printf("Failed to assemble '%s'.\n%v\n", path, err)
		return err
	}

	h.printf("Assembled '%s' to '%s'.\n", path, obj)
	return nil
}

func (h *Host) cmdLink(c cmd.Selection) error {
	if len(c.Args) < 2 {
		h.displayUsage(c.Command)
		return nil
	}
	h.Link(c.Args[0], c.Args[1:])
	return nil
}

// Link links object module files against the base image and the host's
// segments, writing the patched image to out.
func (h *Host) Link(out string, objects []string) error {
	err := h.link(out, objects)
	h.flush()
	if err != nil {
		h.printf("Failed to link '%s'.\n%v\n", out, err)
	}
	return err
}

func (h *Host) link(out string, objects []string) error {
	l := link.New(link.Options{Verbose: h.settings.Verbose, Out: h.output})
	if h.base != nil {
		l.Base(h.base, h.baseOffset)
	}
	for _, s := range h.segments {
		l.AddSegment(s)
	}
	for _, path := range objects {
		m, err := module.Load(path)
		if err != nil {
			return err
		}
		if err := l.Read(m); err != nil {
			return errors.Wrapf(err, "reading '%s'", path)
		}
	}

	p, err := l.Link()
	if err != nil {
		return err
	}
	exports, err := l.Exports()
	if err != nil {
		return err
	}

	image := p.Apply(h.baseImage(), 0)
	if err := os.WriteFile(out, image, 0644); err != nil {
		return errors.Wrapf(err, "writing '%s'", out)
	}

	h.linker, h.exports, h.image = l, exports, image
	n := 0
	for _, hk := range p.Hunks() {
		n += len(hk.Data)
	}
	h.printf("Linked %d modules to '%s' (%d bytes patched).\n", len(objects), out, n)
	return nil
}

// baseImage returns a copy of the base image placed at its file offset.
func (h *Host) baseImage() []byte {
	if h.base == nil {
		return nil
	}
	image := make([]byte, h.baseOffset+len(h.base))
	copy(image[h.baseOffset:], h.base)
	return image
}

func (h *Host) cmdBase(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayUsage(c.Command)
		return nil
	}

	offset := 0
	if len(c.Args) > 1 {
		v, err := h.evaluate(c.Args[1])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		offset = v
	}

	data, err := os.ReadFile(c.Args[0])
	if err != nil {
		h.printf("%v\n", errors.Wrap(err, "loading base image"))
		return nil
	}
	h.base, h.baseOffset = data, offset
	h.image = h.baseImage()
	h.printf("Loaded %d bytes from '%s' at offset $%05X.\n", len(data), c.Args[0], offset)
	return nil
}

func (h *Host) cmdSegmentAdd(c cmd.Selection) error {
	if len(c.Args) < 4 {
		h.displayUsage(c.Command)
		return nil
	}

	vals := make([]int, len(c.Args)-1)
	for i, a := range c.Args[1:] {
		v, err := h.evaluate(a)
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		vals[i] = v
	}

	s := &module.Segment{
		Name:   c.Args[0],
		Size:   expr.Int(vals[0]),
		Offset: expr.Int(vals[1]),
		Memory: expr.Int(vals[2]),
	}
	if len(vals) > 3 {
		s.Bank = expr.Int(vals[3])
	}
	h.addSegment(s)
	h.printf("Segment %s.\n", s)
	return nil
}

func (h *Host) addSegment(s *module.Segment) {
	for i, prev := range h.segments {
		if prev.Name == s.Name {
			h.segments[i] = module.MergeSegments(prev, s)
			return
		}
	}
	h.segments = append(h.segments, s)
}

func (h *Host) cmdSegmentList(c cmd.Selection) error {
	if len(h.segments) == 0 {
		h.println("No segments declared.")
		return nil
	}
	for _, s := range h.segments {
		h.printf("    %s\n", s)
	}
	return nil
}

func (h *Host) cmdExports(c cmd.Selection) error {
	if len(h.exports) == 0 {
		h.println("No active exports.")
		return nil
	}

	names := make([]string, 0, len(h.exports))
	for name := range h.exports {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		e := h.exports[name]
		line := fmt.Sprintf("%-16s $%04X", name, e.Value)
		if e.Offset != nil {
			line += fmt.Sprintf("  offset $%05X", *e.Offset)
		}
		if e.Bank != nil {
			line += fmt.Sprintf("  bank $%02X", *e.Bank)
		}
		h.println(line)
	}
	return nil
}

func (h *Host) cmdReport(c cmd.Selection) error {
	if h.linker == nil {
		h.println("Nothing has been linked.")
		return nil
	}
	h.linker.Report(h.output)
	h.flush()
	return nil
}

func (h *Host) cmdDisassemble(c cmd.Selection) error {
	if len(c.Args) == 0 {
		c.Args = []string{"$"}
	}

	off := h.nextDisasm
	if c.Args[0] != "$" {
		v, err := h.evaluate(c.Args[0])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		off = v
	}

	lines := h.settings.DisasmLines
	if len(c.Args) > 1 {
		v, err := h.evaluate(c.Args[1])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		lines = v
	}

	arch, _ := cpu.ParseArchitecture(h.settings.Arch)
	set := cpu.GetInstructionSet(arch)
	for i := 0; i < lines && off >= 0 && off < len(h.image); i++ {
		line, n := disasm.Disassemble(set, h.image[off:], h.cpuAddr(off))
		h.printf("%05X  %04X-   %-8s    %s\n", off, h.cpuAddr(off), codeString(h.image[off:off+n]), line)
		off += n
	}

	h.nextDisasm = off
	if h.lastCmd != nil {
		h.lastCmd.Args = []string{"$", fmt.Sprintf("%d", lines)}
	}
	return nil
}

// cpuAddr returns the CPU address of a file offset, using the first
// declared segment that holds it.
func (h *Host) cpuAddr(off int) int {
	for _, s := range h.segments {
		if s.Size == nil || s.Offset == nil {
			continue
		}
		if off >= *s.Offset && off < *s.Offset+*s.Size {
			mem := *s.Offset
			if s.Memory != nil {
				mem = *s.Memory
			}
			return off - *s.Offset + mem
		}
	}
	return off
}

func (h *Host) cmdEvaluate(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayUsage(c.Command)
		return nil
	}

	v, err := h.evaluate(strings.Join(c.Args, " "))
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}
	h.printf("$%04X  %d\n", v, v)
	return nil
}

// evaluate parses and folds an expression, resolving names through the
// exports of the most recent link.
func (h *Host) evaluate(s string) (int, error) {
	if h.settings.HexMode && isHexDigits(s) {
		s = "$" + s
	}

	tokens, err := token.TokenizeLine(s, "", 1)
	if err != nil {
		return 0, err
	}
	if len(tokens) == 0 {
		return 0, errors.New("Expected an expression")
	}
	e, err := expr.ParseOnly(tokens, 0)
	if err != nil {
		return 0, err
	}
	e, err = expr.Resolve(e, func(sym *expr.Expr) (*expr.Expr, error) {
		if x, ok := h.exports[sym.Sym]; ok {
			return expr.Number(x.Value), nil
		}
		return nil, errors.Errorf("Symbol '%s' not found", sym.Sym)
	})
	if err != nil {
		return 0, err
	}
	v, ok := expr.Value(e)
	if !ok {
		return 0, errors.Errorf("Unable to evaluate %s", e)
	}
	return v, nil
}

func (h *Host) cmdExecute(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayUsage(c.Command)
		return nil
	}

	file, err := os.Open(c.Args[0])
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}
	defer file.Close()

	return h.run(file, false)
}

func (h *Host) cmdMemoryDump(c cmd.Selection) error {
	if len(c.Args) == 0 {
		c.Args = []string{"$"}
	}

	off := h.nextDump
	if c.Args[0] != "$" {
		v, err := h.evaluate(c.Args[0])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		off = v
	}

	bytes := h.settings.MemDumpBytes
	if len(c.Args) > 1 {
		v, err := h.evaluate(c.Args[1])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		bytes = v
	}

	h.dumpMemory(off, bytes)

	h.nextDump = off + bytes
	if h.lastCmd != nil {
		h.lastCmd.Args = []string{"$", fmt.Sprintf("%d", bytes)}
	}
	return nil
}

// dumpMemory displays the image bytes in [off0, off0+bytes), eight to a
// row. Rows are aligned to 8-byte boundaries.
func (h *Host) dumpMemory(off0, bytes int) {
	off1 := min(off0+bytes, len(h.image))
	if off0 < 0 || off0 >= off1 {
		return
	}

	buf := []byte("     -" + strings.Repeat(" ", 35))
	for r := off0 &^ 7; r < off1; r += 8 {
		offsetToBuf(r, buf[0:5])
		for i, c1, c2 := r, 7, 33; i < r+8; i, c1, c2 = i+1, c1+3, c2+1 {
			if i >= off0 && i < off1 {
				m := h.image[i]
				byteToBuf(m, buf[c1:c1+2])
				buf[c2] = toPrintableChar(m)
			} else {
				buf[c1], buf[c1+1], buf[c2] = ' ', ' ', ' '
			}
		}
		h.println(string(buf))
	}
}

func (h *Host) cmdQuit(c cmd.Selection) error {
	return errQuit
}

func (h *Host) cmdSet(c cmd.Selection) error {
	switch len(c.Args) {
	case 0:
		h.println("Variables:")
		h.settings.Display(h.output)
		h.flush()

	case 1:
		h.displayUsage(c.Command)

	default:
		key, value := strings.ToLower(c.Args[0]), strings.Join(c.Args[1:], " ")

		var err error
		switch h.settings.Kind(key) {
		case reflect.Invalid:
			err = errors.Errorf("Setting '%s' not found", key)
		case reflect.String:
			err = h.settings.Set(key, value)
		case reflect.Bool:
			var v bool
			v, err = stringToBool(value)
			if err == nil {
				err = h.settings.Set(key, v)
			}
		default:
			var v int
			v, err = h.evaluate(value)
			if err == nil {
				err = h.settings.Set(key, v)
			}
		}

		if err == nil {
			h.println("Setting updated.")
		} else {
			h.printf("%v\n", err)
		}
	}
	return nil
}

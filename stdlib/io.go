package stdlib

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/carriercomm/Sparkling/vm"
)

// ---------------------------------------------------------------------------
// I/O library
// ---------------------------------------------------------------------------

// fileHandle wraps an open file for script code. Handles obtained from
// fopen travel as strong user-info values; the standard streams are
// process-lifetime weak user-info constants.
type fileHandle struct {
	f   *os.File
	eof bool
	std bool
}

var (
	stdinHandle  = &fileHandle{f: os.Stdin, std: true}
	stdoutHandle = &fileHandle{f: os.Stdout, std: true}
	stderrHandle = &fileHandle{f: os.Stderr, std: true}
)

var stdinReader = bufio.NewReader(os.Stdin)

func loadIO(ctx *vm.Context) {
	ctx.RegisterNativeFns(map[string]vm.NativeFn{
		"print":     stdPrint,
		"println":   stdPrintln,
		"dbgprint":  stdDbgPrint,
		"printf":    stdPrintf,
		"fprintf":   ioFprintf,
		"getline":   stdGetline,
		"fopen":     ioFopen,
		"fclose":    ioFclose,
		"fgetline":  ioFgetline,
		"fread":     ioFread,
		"fwrite":    ioFwrite,
		"fflush":    ioFflush,
		"ftell":     ioFtell,
		"fseek":     ioFseek,
		"feof":      ioFeof,
		"remove":    ioRemove,
		"rename":    ioRename,
		"readfile":  stdReadFile,
		"writefile": stdWriteFile,
	})
	ctx.RegisterConstants(map[string]vm.Value{
		"stdin":  vm.MakeWeakUserInfo(stdinHandle),
		"stdout": vm.MakeWeakUserInfo(stdoutHandle),
		"stderr": vm.MakeWeakUserInfo(stderrHandle),
	})
}

func wantFile(ctx *vm.Context, fn string, argv []vm.Value, i int) (*fileHandle, bool) {
	if i < len(argv) && argv[i].IsUserInfo() {
		if h, ok := argv[i].UserInfo().(*fileHandle); ok && h.f != nil {
			return h, true
		}
	}
	ctx.RuntimeError("%s: argument %d must be an open file handle", fn, i+1)
	return nil, false
}

func stdPrint(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	for _, v := range argv {
		fmt.Print(v.Describe())
	}
	return 0
}

func stdPrintln(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	for _, v := range argv {
		fmt.Print(v.Describe())
	}
	fmt.Println()
	return 0
}

// stdDbgPrint prints debug descriptions (strings quoted, containers
// expanded) followed by a newline.
func stdDbgPrint(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	for i, v := range argv {
		if i > 0 {
			fmt.Print(" ")
		}
		fmt.Print(v.DebugDescribe())
	}
	fmt.Println()
	return 0
}

func stdPrintf(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if len(argv) < 1 {
		return fail(ctx, "printf: expecting at least 1 argument")
	}
	format, ok := wantString(ctx, "printf", argv, 0)
	if !ok {
		return -1
	}
	out, err := formatString(format.Content, argv[1:])
	if err != nil {
		return fail(ctx, "printf: %v", err)
	}
	fmt.Print(out)
	return 0
}

// ioFprintf formats like printf but writes to a file handle.
func ioFprintf(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if len(argv) < 2 {
		return fail(ctx, "fprintf: expecting at least 2 arguments")
	}
	h, ok := wantFile(ctx, "fprintf", argv, 0)
	if !ok {
		return -1
	}
	format, ok := wantString(ctx, "fprintf", argv, 1)
	if !ok {
		return -1
	}
	out, err := formatString(format.Content, argv[2:])
	if err != nil {
		return fail(ctx, "fprintf: %v", err)
	}
	if _, err := h.f.WriteString(out); err != nil {
		return fail(ctx, "fprintf: %v", err)
	}
	return 0
}

// stdGetline reads one line from standard input, without the trailing
// newline. Returns nil at end of input.
func stdGetline(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	line, err := stdinReader.ReadString('\n')
	if err != nil && line == "" {
		*ret = vm.MakeNil()
		return 0
	}
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	*ret = vm.MakeString(line)
	return 0
}

// ioFopen opens a file with a C-style mode string: "r", "w", "a", and
// their "+" variants. The handle closes itself when the last reference
// to it is released.
func ioFopen(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "fopen", argv, 2) {
		return -1
	}
	path, ok := wantString(ctx, "fopen", argv, 0)
	if !ok {
		return -1
	}
	mode, ok := wantString(ctx, "fopen", argv, 1)
	if !ok {
		return -1
	}

	var flag int
	switch mode.Content {
	case "r":
		flag = os.O_RDONLY
	case "r+":
		flag = os.O_RDWR
	case "w":
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case "w+":
		flag = os.O_RDWR | os.O_CREATE | os.O_TRUNC
	case "a":
		flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	case "a+":
		flag = os.O_RDWR | os.O_CREATE | os.O_APPEND
	default:
		return fail(ctx, "fopen: invalid mode %q", mode.Content)
	}

	f, err := os.OpenFile(path.Content, flag, 0o644)
	if err != nil {
		return fail(ctx, "fopen: %v", err)
	}
	h := &fileHandle{f: f}
	*ret = vm.MakeStrongUserInfo(h, func(any) {
		if h.f != nil {
			h.f.Close()
			h.f = nil
		}
	})
	return 0
}

func ioFclose(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "fclose", argv, 1) {
		return -1
	}
	h, ok := wantFile(ctx, "fclose", argv, 0)
	if !ok {
		return -1
	}
	if h.std {
		return fail(ctx, "fclose: cannot close a standard stream")
	}
	err := h.f.Close()
	h.f = nil
	if err != nil {
		return fail(ctx, "fclose: %v", err)
	}
	return 0
}

// ioFgetline reads one line, without the trailing newline. Returns nil
// at end of file.
func ioFgetline(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "fgetline", argv, 1) {
		return -1
	}
	h, ok := wantFile(ctx, "fgetline", argv, 0)
	if !ok {
		return -1
	}

	var line []byte
	buf := make([]byte, 1)
	for {
		n, err := h.f.Read(buf)
		if n > 0 {
			if buf[0] == '\n' {
				break
			}
			line = append(line, buf[0])
			continue
		}
		if err == io.EOF {
			h.eof = true
			if len(line) == 0 {
				*ret = vm.MakeNil()
				return 0
			}
			break
		}
		if err != nil {
			return fail(ctx, "fgetline: %v", err)
		}
	}
	*ret = vm.MakeString(string(line))
	return 0
}

// ioFread reads up to n bytes; a short string signals end of file.
func ioFread(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "fread", argv, 2) {
		return -1
	}
	h, ok := wantFile(ctx, "fread", argv, 0)
	if !ok {
		return -1
	}
	n, ok := wantInt(ctx, "fread", argv, 1)
	if !ok {
		return -1
	}
	if n < 0 {
		return fail(ctx, "fread: size must be non-negative (was %d)", n)
	}

	buf := make([]byte, n)
	got, err := io.ReadFull(h.f, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		h.eof = true
	} else if err != nil {
		return fail(ctx, "fread: %v", err)
	}
	*ret = vm.MakeString(string(buf[:got]))
	return 0
}

func ioFwrite(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "fwrite", argv, 2) {
		return -1
	}
	h, ok := wantFile(ctx, "fwrite", argv, 0)
	if !ok {
		return -1
	}
	data, ok := wantString(ctx, "fwrite", argv, 1)
	if !ok {
		return -1
	}
	if _, err := h.f.WriteString(data.Content); err != nil {
		return fail(ctx, "fwrite: %v", err)
	}
	return 0
}

func ioFflush(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "fflush", argv, 1) {
		return -1
	}
	h, ok := wantFile(ctx, "fflush", argv, 0)
	if !ok {
		return -1
	}
	if err := h.f.Sync(); err != nil && !h.std {
		return fail(ctx, "fflush: %v", err)
	}
	return 0
}

func ioFtell(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "ftell", argv, 1) {
		return -1
	}
	h, ok := wantFile(ctx, "ftell", argv, 0)
	if !ok {
		return -1
	}
	pos, err := h.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return fail(ctx, "ftell: %v", err)
	}
	*ret = vm.MakeInt(pos)
	return 0
}

// ioFseek repositions the handle. whence is "set", "cur" or "end".
func ioFseek(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "fseek", argv, 3) {
		return -1
	}
	h, ok := wantFile(ctx, "fseek", argv, 0)
	if !ok {
		return -1
	}
	off, ok := wantInt(ctx, "fseek", argv, 1)
	if !ok {
		return -1
	}
	mode, ok := wantString(ctx, "fseek", argv, 2)
	if !ok {
		return -1
	}

	var whence int
	switch mode.Content {
	case "set":
		whence = io.SeekStart
	case "cur":
		whence = io.SeekCurrent
	case "end":
		whence = io.SeekEnd
	default:
		return fail(ctx, `fseek: whence must be "set", "cur" or "end" (was %q)`, mode.Content)
	}
	if _, err := h.f.Seek(off, whence); err != nil {
		return fail(ctx, "fseek: %v", err)
	}
	h.eof = false
	return 0
}

func ioFeof(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "feof", argv, 1) {
		return -1
	}
	h, ok := wantFile(ctx, "feof", argv, 0)
	if !ok {
		return -1
	}
	*ret = vm.MakeBool(h.eof)
	return 0
}

func ioRemove(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "remove", argv, 1) {
		return -1
	}
	path, ok := wantString(ctx, "remove", argv, 0)
	if !ok {
		return -1
	}
	if err := os.Remove(path.Content); err != nil {
		return fail(ctx, "remove: %v", err)
	}
	return 0
}

func ioRename(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "rename", argv, 2) {
		return -1
	}
	oldPath, ok := wantString(ctx, "rename", argv, 0)
	if !ok {
		return -1
	}
	newPath, ok := wantString(ctx, "rename", argv, 1)
	if !ok {
		return -1
	}
	if err := os.Rename(oldPath.Content, newPath.Content); err != nil {
		return fail(ctx, "rename: %v", err)
	}
	return 0
}

func stdReadFile(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "readfile", argv, 1) {
		return -1
	}
	path, ok := wantString(ctx, "readfile", argv, 0)
	if !ok {
		return -1
	}
	data, err := os.ReadFile(path.Content)
	if err != nil {
		return fail(ctx, "readfile: %v", err)
	}
	*ret = vm.MakeString(string(data))
	return 0
}

func stdWriteFile(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "writefile", argv, 2) {
		return -1
	}
	path, ok := wantString(ctx, "writefile", argv, 0)
	if !ok {
		return -1
	}
	content, ok := wantString(ctx, "writefile", argv, 1)
	if !ok {
		return -1
	}
	if err := os.WriteFile(path.Content, []byte(content.Content), 0o644); err != nil {
		return fail(ctx, "writefile: %v", err)
	}
	return 0
}

// Package console prints operator-facing messages to stdout.
package console

import (
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

var out io.Writer = os.Stdout

func init() {
	// 非终端输出时关闭颜色
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		text.DisableColors()
	}
}

func Writer() io.Writer {
	return out
}

func Success(format string, v ...interface{}) {
	fmt.Fprintln(out, text.FgGreen.Sprintf(format, v...))
}

func Warn(format string, v ...interface{}) {
	fmt.Fprintln(out, text.FgYellow.Sprintf(format, v...))
}

func Fail(format string, v ...interface{}) {
	fmt.Fprintln(out, text.Colors{text.FgRed, text.Bold}.Sprintf(format, v...))
}

func Info(format string, v ...interface{}) {
	fmt.Fprintln(out, text.FgCyan.Sprintf(format, v...))
}

func Plain(format string, v ...interface{}) {
	fmt.Fprintf(out, format, v...)
}

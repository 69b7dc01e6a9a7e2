// Package cli holds the pieces shared by the command-line tools.
package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Version is stamped into every binary at build time with
// -ldflags "-X github.com/WalidBenTouhami/server-bench/internal/cli.Version=...".
var Version = "dev"

// Wrap is the column help text is wrapped at.
const Wrap = 50

// WrapString reflows text so that flag help stays readable in a terminal.
func WrapString(text string) string {
	var lines []string
	var line strings.Builder

	for _, word := range strings.Fields(text) {
		if line.Len() > 0 && line.Len()+1+len(word) > Wrap {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteByte(' ')
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

// WriteFile creates path and hands a buffered writer on it to write. Flush
// and Close errors are returned along with write's own error.
func WriteFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	return writeAndClose(f, write)
}

func writeAndClose(wc io.WriteCloser, write func(io.Writer) error) error {
	bw := bufio.NewWriter(wc)
	err := write(bw)
	if ferr := bw.Flush(); err == nil {
		err = ferr
	}
	if cerr := wc.Close(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("close: %w", cerr))
	}
	return err
}

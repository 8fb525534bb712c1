package repl

import (
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"unicode/utf8"

	"github.com/rickgao/wsclient/internal/connection"
)

// maxHexPreview bounds how much of a binary payload is printed.
const maxHexPreview = 32

// Printer writes notifications and command output to one writer, one line
// at a time. It implements connection.Observer.
type Printer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewPrinter creates a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Printf writes a formatted line.
func (p *Printer) Printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *Printer) OnOpen() {
	p.Printf("[open] connected")
}

func (p *Printer) OnClose(reason connection.CloseReason) {
	p.Printf("[close] %s", reason)
}

func (p *Printer) OnMessage(msg connection.Message) {
	if msg.Type == connection.TextMessage && utf8.Valid(msg.Data) {
		p.Printf("[recv] %s", msg.Data)
		return
	}

	preview := msg.Data
	suffix := ""
	if len(preview) > maxHexPreview {
		preview = preview[:maxHexPreview]
		suffix = "..."
	}
	p.Printf("[recv] binary %d bytes: %s%s", len(msg.Data), hex.EncodeToString(preview), suffix)
}

func (p *Printer) OnError(err error) {
	p.Printf("[error] %v", err)
}

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/tailored-agentic-units/exchange/core/protocol"
)

// printer writes the streamed reply of one exchange to out. Each snapshot
// prints only the text not yet written; a reply that no longer extends the
// printed text is written again in full on a new line.
type printer struct {
	out     io.Writer
	printed string
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out}
}

func (p *printer) update(msgs []protocol.Message) {
	if len(msgs) == 0 {
		return
	}
	last := msgs[len(msgs)-1]
	if last.Role != protocol.RoleAssistant {
		return
	}

	content := last.Content
	if strings.HasPrefix(content, p.printed) {
		fmt.Fprint(p.out, content[len(p.printed):])
	} else {
		fmt.Fprint(p.out, "\n"+content)
	}
	p.printed = content
}

func (p *printer) done() {
	if p.printed != "" {
		fmt.Fprintln(p.out)
	}
}

package location

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/hazyhaar/pinwatch/browser"
)

// Prompter blocks until an operator acknowledges message.
type Prompter interface {
	Prompt(ctx context.Context, message string) error
}

// LinePrompter writes the message to Out and waits for a line on In.
type LinePrompter struct {
	In  io.Reader
	Out io.Writer

	once  sync.Once
	lines chan struct{}
}

// Prompt implements Prompter. One reader goroutine owns In for the life of
// the prompter, so a line typed ahead answers the next prompt.
func (p *LinePrompter) Prompt(ctx context.Context, message string) error {
	p.once.Do(func() {
		p.lines = make(chan struct{}, 1)
		go p.read()
	})

	fmt.Fprintln(p.Out, message)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case _, ok := <-p.lines:
		if !ok {
			return io.EOF
		}
		return nil
	}
}

func (p *LinePrompter) read() {
	defer close(p.lines)
	sc := bufio.NewScanner(p.In)
	for sc.Scan() {
		p.lines <- struct{}{}
	}
}

// ManualStrategy asks an operator to set the location in the visible
// browser. The operator's confirmation is trusted.
type ManualStrategy struct {
	Prompter Prompter
}

func (s *ManualStrategy) Name() string  { return "manual" }
func (s *ManualStrategy) Trusted() bool { return true }

func (s *ManualStrategy) Attempt(ctx context.Context, bc browser.Context, code string) (bool, error) {
	if s.Prompter == nil {
		return false, fmt.Errorf("no operator prompt configured")
	}
	if err := s.Prompter.Prompt(ctx, ManualMessage(code)); err != nil {
		return false, err
	}
	return true, nil
}

// ManualMessage is the operator instruction for code.
func ManualMessage(code string) string {
	if code == Sentinel {
		return "Set the delivery location in the browser window, then press Enter here..."
	}
	return fmt.Sprintf("Set the delivery location to %s in the browser window, then press Enter here...", code)
}

// Sentinel stands for "whatever location the operator sets" when no
// location code is configured.
const Sentinel = "browser"

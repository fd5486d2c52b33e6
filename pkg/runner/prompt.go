package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Prompter asks the user a question and returns the answer line.
type Prompter interface {
	Prompt(ctx context.Context, question string) (string, error)
}

// LinePrompter reads answers line by line. Reads happen on a background
// pump so a prompt can be abandoned when its context ends. Prompts are
// serialized, so concurrent callers never interleave.
type LinePrompter struct {
	reader *bufio.Reader
	writer io.Writer

	mu        sync.Mutex
	lines     chan inputResult
	startOnce sync.Once
}

type inputResult struct {
	text string
	err  error
}

// NewLinePrompter creates a prompter over r, writing questions to w.
func NewLinePrompter(r io.Reader, w io.Writer) *LinePrompter {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stderr
	}
	return &LinePrompter{reader: bufio.NewReader(r), writer: w}
}

func (p *LinePrompter) initPump() {
	p.startOnce.Do(func() {
		p.lines = make(chan inputResult)
		go p.pump()
	})
}

func (p *LinePrompter) pump() {
	for {
		text, err := p.reader.ReadString('\n')
		if text != "" {
			p.lines <- inputResult{text: text}
		}
		if err != nil {
			if err != io.EOF {
				p.lines <- inputResult{err: err}
			}
			close(p.lines)
			return
		}
	}
}

// Prompt writes question and waits for a line. It returns io.EOF once the
// input is exhausted.
func (p *LinePrompter) Prompt(ctx context.Context, question string) (string, error) {
	p.initPump()
	p.mu.Lock()
	defer p.mu.Unlock()

	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	fmt.Fprint(p.writer, question)

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res, ok := <-p.lines:
		if !ok {
			return "", io.EOF
		}
		if res.err != nil {
			return "", res.err
		}
		return SanitizeInput(strings.TrimSpace(res.text))
	}
}

// ReadInput reads the whole of r as a run input, sanitized.
func ReadInput(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, int64(maxInputSize())+1))
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return SanitizeInput(strings.TrimRight(string(data), "\r\n"))
}

package console

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"unicode"

	"bilancio/internal/log"
)

const prompt = "bilancio> "

// shell reads one command per line until EOF, "quit" or "exit". The store
// stays in memory between lines, so the editing cursor and flush are
// meaningful here.
func (c *Console) shell(ctx context.Context, args []string) error {
	if len(args) > 0 {
		return usagef("shell: unexpected arguments %v", args)
	}

	scanner := bufio.NewScanner(c.in)
	fmt.Fprint(c.out, prompt)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		words, err := splitWords(scanner.Text())
		switch {
		case err != nil:
			fmt.Fprintf(c.errOut, "error: %v\n", err)
		case len(words) == 0:
		case words[0] == "quit" || words[0] == "exit":
			return c.leaveShell(ctx)
		case words[0] == "shell":
			fmt.Fprintln(c.errOut, "already in the shell")
		default:
			c.logger.DebugContext(ctx, "Shell command", "command", words[0])
			c.Run(ctx, words)
		}
		fmt.Fprint(c.out, prompt)
	}
	fmt.Fprintln(c.out)
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return c.leaveShell(ctx)
}

// leaveShell makes one last attempt to save before the process exits.
func (c *Console) leaveShell(ctx context.Context) error {
	if !c.ctrl.Dirty() {
		return nil
	}
	if err := c.ctrl.Flush(ctx); err != nil {
		c.logger.ErrorContext(ctx, "Unsaved changes lost on exit",
			log.FieldOperation, log.OpFlush,
			log.FieldErrorType, log.ErrorTypePersistence,
			log.FieldError, err)
		return err
	}
	return nil
}

// splitWords splits a line on spaces, honouring single and double quotes and
// backslash escapes outside single quotes.
func splitWords(line string) ([]string, error) {
	var (
		words   []string
		cur     strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inWord = true
		case unicode.IsSpace(r):
			if inWord {
				words = append(words, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if escaped {
		return nil, fmt.Errorf("trailing backslash")
	}
	if inWord {
		words = append(words, cur.String())
	}
	return words, nil
}

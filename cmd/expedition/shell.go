package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// command is one parsed line of interactive input
type command struct {
	name string
	arg  string
}

func parseCommand(line string) command {
	name, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	return command{name: strings.ToLower(name), arg: strings.TrimSpace(arg)}
}

// runShell reads commands from in until "exit", end of input or ctx is done.
// Handler errors are printed and the loop continues.
func runShell(ctx context.Context, in io.Reader, out io.Writer, prompt string, handle func(context.Context, command) error) error {
	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		fmt.Fprintf(out, "%s> ", prompt)

		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}

			cmd := parseCommand(line)
			if cmd.name == "" {
				continue
			}
			if cmd.name == "exit" {
				return nil
			}

			if err := handle(ctx, cmd); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
		}
	}
}

// Package cli implements an interactive RESP client: the terminal-facing
// counterpart to internal/server, used to poke at a running server by hand
// or drive it from a script.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"

	"tidekv/internal/resp"
)

// Config holds the CLI's connection and input-source parameters.
type Config struct {
	Host    string
	Port    int
	Timeout time.Duration
	Eval    string
	File    string
	Pipe    bool
}

// History keeps a bounded, de-duplicated log of entered lines for arrow-key
// recall in interactive mode.
type History struct {
	commands []string
	position int
	maxSize  int
}

// NewHistory returns an empty History bounded to maxSize entries.
func NewHistory(maxSize int) *History {
	return &History{commands: make([]string, 0, maxSize), maxSize: maxSize}
}

func (h *History) Len() int { return len(h.commands) }

// Add appends command unless it is empty or repeats the most recent entry.
func (h *History) Add(command string) {
	if command == "" || (len(h.commands) > 0 && h.commands[len(h.commands)-1] == command) {
		return
	}
	h.commands = append(h.commands, command)
	if len(h.commands) > h.maxSize {
		h.commands = h.commands[1:]
	}
	h.position = len(h.commands)
}

// Previous returns the prior entry, or "" if already at the oldest.
func (h *History) Previous() string {
	if len(h.commands) == 0 {
		return ""
	}
	if h.position >= len(h.commands) {
		h.position = len(h.commands) - 1
		return h.commands[h.position]
	}
	if h.position > 0 {
		h.position--
		return h.commands[h.position]
	}
	return ""
}

// Next returns the following entry, or "" once back at the blank input line.
func (h *History) Next() string {
	if len(h.commands) == 0 {
		return ""
	}
	if h.position < len(h.commands)-1 {
		h.position++
		return h.commands[h.position]
	}
	h.position = len(h.commands)
	return ""
}

func dial(cfg Config) (net.Conn, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	return net.DialTimeout("tcp", addr, cfg.Timeout)
}

// parseLine turns a space-separated command line into a RESP command
// array. Quoting is not supported; arguments split on whitespace only.
func parseLine(line string) string {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*%d\r\n", len(parts))
	for _, p := range parts {
		fmt.Fprintf(&b, "$%d\r\n%s\r\n", len(p), p)
	}
	return b.String()
}

// roundTrip sends line and returns the decoded reply.
func roundTrip(conn net.Conn, br *bufio.Reader, line string) (resp.Reply, error) {
	encoded := parseLine(line)
	if encoded == "" {
		return resp.Reply{}, fmt.Errorf("empty command")
	}
	if _, err := conn.Write([]byte(encoded)); err != nil {
		return resp.Reply{}, err
	}
	return resp.ReadReply(br)
}

// format renders a Reply the way a person reading a terminal expects:
// unwrapped strings, "(error) ..." prefixes, "(nil)" for absent values.
func format(r resp.Reply) string {
	switch r.Type {
	case resp.ReplySimpleString:
		return r.Str
	case resp.ReplyError:
		return "(error) " + r.Str
	case resp.ReplyInteger:
		return "(integer) " + strconv.FormatInt(r.Int, 10)
	case resp.ReplyBulkString:
		if r.IsNull {
			return "(nil)"
		}
		return r.Str
	case resp.ReplyArray:
		if r.IsNull {
			return "(nil)"
		}
		if len(r.Array) == 0 {
			return "(empty array)"
		}
		parts := make([]string, len(r.Array))
		for i, el := range r.Array {
			parts[i] = fmt.Sprintf("%d) %s", i+1, format(el))
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}

func runOne(conn net.Conn, br *bufio.Reader, line string) {
	reply, err := roundTrip(conn, br, line)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}
	fmt.Println(format(reply))
}

func runFile(conn net.Conn, br *bufio.Reader, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		reply, err := roundTrip(conn, br, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "line %d: %v\n", lineNum, err)
			continue
		}
		fmt.Printf("%d) %s\n", lineNum, format(reply))
	}
	return scanner.Err()
}

func runPipe(conn net.Conn, br *bufio.Reader) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		reply, err := roundTrip(conn, br, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		fmt.Println(format(reply))
	}
	return scanner.Err()
}

func printHelp() {
	fmt.Println("\rCommands:\r")
	fmt.Println("\r  help                 show this help\r")
	fmt.Println("\r  quit, exit           leave the client\r")
	fmt.Println("\r  clear                clear the screen\r")
	fmt.Println("\r\r")
	fmt.Println("\rServer commands:\r")
	fmt.Println("\r  PING [message]\r")
	fmt.Println("\r  ECHO message\r")
	fmt.Println("\r  SET key value [PX milliseconds]\r")
	fmt.Println("\r  GET key\r")
	fmt.Println("\r  INCR key\r")
	fmt.Println("\r  DEL key [key ...]\r")
	fmt.Println("\r  MULTI / EXEC / DISCARD\r")
	fmt.Println("\r  INFO replication\r")
	fmt.Println("\r")
}

// runInteractiveRaw drives the session with the terminal in raw mode,
// giving arrow-key history recall. Falls back to line mode if raw mode
// can't be established (e.g. stdin isn't a terminal).
func runInteractiveRaw(conn net.Conn, br *bufio.Reader, cfg Config) {
	fmt.Printf("tidekv-cli connected to %s:%d\n", cfg.Host, cfg.Port)
	fmt.Println("Type 'help' for commands, 'quit' to exit.")

	history := NewHistory(100)

	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		runInteractiveLine(conn, br, history)
		return
	}
	defer term.Restore(int(os.Stdin.Fd()), oldState)

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("tidekv> ")
		line, err := readLineWithHistory(reader, history)
		if err != nil {
			if err == io.EOF {
				fmt.Println()
				return
			}
			fmt.Fprintf(os.Stderr, "\r\nerror: %v\r\n", err)
			continue
		}
		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "quit", "exit":
			fmt.Print("\rgoodbye\r\n")
			return
		case "help":
			printHelp()
			continue
		case "clear":
			fmt.Print("\033[H\033[2J")
			continue
		}
		history.Add(line)
		reply, err := roundTrip(conn, br, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "\rerror: %v\r\n", err)
			continue
		}
		fmt.Print("\r" + format(reply) + "\r\n")
	}
}

// runInteractiveLine is the fallback used when the terminal can't be
// switched to raw mode: plain line editing, no history recall.
func runInteractiveLine(conn net.Conn, br *bufio.Reader, history *History) {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("tidekv> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				fmt.Println()
				return
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "quit", "exit":
			fmt.Println("goodbye")
			return
		case "help":
			printHelp()
			continue
		case "clear":
			fmt.Print("\033[H\033[2J")
			continue
		}
		history.Add(line)
		reply, err := roundTrip(conn, br, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		fmt.Println(format(reply))
	}
}

// readLineWithHistory reads one line byte-by-byte off a raw-mode terminal,
// handling arrow-key escape sequences for history recall and basic line
// editing (backspace, left/right). Home/end and other escape sequences are
// ignored.
func readLineWithHistory(reader *bufio.Reader, history *History) (string, error) {
	var input strings.Builder
	cursor := 0

	redraw := func(s string) {
		fmt.Print("\r\033[K tidekv> " + s)
	}

	for {
		b, err := reader.ReadByte()
		if err != nil {
			return "", err
		}

		if b == 27 { // ESC
			b2, err := reader.ReadByte()
			if err != nil {
				return "", err
			}
			if b2 != '[' {
				continue
			}
			b3, err := reader.ReadByte()
			if err != nil {
				return "", err
			}
			switch b3 {
			case 'A': // up
				if prev := history.Previous(); prev != "" || history.Len() > 0 {
					input.Reset()
					input.WriteString(prev)
					cursor = input.Len()
					redraw(prev)
				}
			case 'B': // down
				next := history.Next()
				input.Reset()
				input.WriteString(next)
				cursor = input.Len()
				redraw(next)
			case 'C': // right
				if cursor < input.Len() {
					cursor++
					fmt.Print("\033[C")
				}
			case 'D': // left
				if cursor > 0 {
					cursor--
					fmt.Print("\033[D")
				}
			}
			continue
		}

		if b == 127 || b == 8 { // backspace
			if cursor > 0 {
				cur := input.String()
				input.Reset()
				input.WriteString(cur[:cursor-1] + cur[cursor:])
				cursor--
				fmt.Print("\b \b")
			}
			continue
		}

		if b == 3 { // Ctrl+C
			fmt.Print("\r\n(use 'quit' to exit)\r\n")
			input.Reset()
			cursor = 0
			continue
		}

		if b == '\n' || b == '\r' {
			fmt.Println()
			return input.String(), nil
		}

		if b >= 32 && b <= 126 {
			cur := input.String()
			input.Reset()
			input.WriteString(cur[:cursor] + string(b) + cur[cursor:])
			cursor++
			fmt.Print(string(b))
		}
	}
}

// Run dials the server and drives whichever mode cfg selects: a single
// --eval command, a batch file, piped stdin lines, or a full interactive
// session.
func Run(cfg Config, args []string) error {
	conn, err := dial(cfg)
	if err != nil {
		return fmt.Errorf("connecting to %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	defer conn.Close()

	br := bufio.NewReader(conn)

	switch {
	case cfg.Eval != "":
		runOne(conn, br, cfg.Eval)
		return nil
	case len(args) > 0:
		runOne(conn, br, strings.Join(args, " "))
		return nil
	case cfg.File != "":
		return runFile(conn, br, cfg.File)
	case cfg.Pipe:
		return runPipe(conn, br)
	default:
		runInteractiveRaw(conn, br, cfg)
		return nil
	}
}

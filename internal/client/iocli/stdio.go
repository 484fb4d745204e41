package iocli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Stdio реализует IO поверх стандартных потоков процесса.
// Потоки вынесены в поля, чтобы тесты могли их подменить.
type Stdio struct {
	in  *os.File
	out io.Writer
}

func NewStdio() IO {
	return &Stdio{in: os.Stdin, out: os.Stdout}
}

func (s *Stdio) Println(a ...any) {
	fmt.Fprintln(s.out, a...)
}

func (s *Stdio) Printf(format string, a ...any) {
	fmt.Fprintf(s.out, format, a...)
}

func (s *Stdio) Write(p []byte) (int, error) {
	return s.out.Write(p)
}

func (s *Stdio) ReadInput(prompt string) (string, error) {
	s.Printf("%s", prompt)
	reader := bufio.NewReader(s.in)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// ReadPassword читает пароль без эха. Если stdin не терминал
// (pipe в тестах или скриптах), читает обычную строку.
func (s *Stdio) ReadPassword(prompt string) (string, error) {
	s.Printf("%s", prompt)

	fd := int(s.in.Fd())
	if !term.IsTerminal(fd) {
		reader := bufio.NewReader(s.in)
		input, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(input), nil
	}

	pwBytes, err := term.ReadPassword(fd)
	s.Println("")
	if err != nil {
		return "", err
	}
	return string(pwBytes), nil
}

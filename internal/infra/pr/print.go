// Package pr — тонкая обёртка для вывода и ввода в интерактивной консоли.
// Инициализирует readline с отменяемым stdin, переназначает stdout/stderr на его буферы,
// читает строки и секреты (без эха) и печатает обычный и диагностический вывод.
package pr

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/go-faster/errors"
	"github.com/kr/pretty"
	"golang.org/x/term"
)

// ErrNoTerminal возвращается ReadSecret, если stdin не является терминалом.
var ErrNoTerminal = errors.New("stdin is not a terminal")

var (
	// rl — активный инстанс readline. Появляется после Init().
	rl *readline.Instance
	// out — текущий поток стандартного вывода. До Init() указывает на os.Stdout.
	out io.Writer = os.Stdout
	// errOut — поток вывода ошибок. До Init() — os.Stderr.
	errOut io.Writer = os.Stderr
	// mu защищает замену ссылок на writer’ы, rl и cancelableIn. Сами записи не сериализует.
	mu sync.Mutex

	// cancelableIn — stdin, закрытие которого прерывает Readline (io.EOF).
	cancelableIn interface{ Close() error }
)

// Init настраивает readline с историей команд и перенаправляет потоки вывода на его stdout/stderr.
func Init(historyFile string) error {
	cs := readline.NewCancelableStdin(os.Stdin)
	newRl, err := readline.NewEx(&readline.Config{
		Stdin:           cs,
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		_ = cs.Close()
		return err
	}

	mu.Lock()
	rl = newRl
	cancelableIn = cs
	out = rl.Stdout()
	errOut = rl.Stderr()
	mu.Unlock()

	return nil
}

// Close закрывает readline и возвращает потоки вывода на os.Stdout/os.Stderr.
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	out, errOut = os.Stdout, os.Stderr
	if rl == nil {
		return nil
	}
	err := rl.Close()
	rl = nil
	return err
}

// SetOutput подменяет потоки вывода. Nil оставляет текущее значение.
func SetOutput(stdout, stderr io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if stdout != nil {
		out = stdout
	}
	if stderr != nil {
		errOut = stderr
	}
}

// InterruptReadline закрывает cancelable stdin: Readline() получает io.EOF и возвращается.
func InterruptReadline() {
	mu.Lock()
	in := cancelableIn
	mu.Unlock()
	if in != nil {
		_ = in.Close()
	}
}

// SetPrompt задаёт строку приглашения. До Init() ничего не делает.
func SetPrompt(prompt string) {
	if r := Rl(); r != nil {
		r.SetPrompt(prompt)
	}
}

// Rl возвращает текущий инстанс readline (nil, если Init() не вызывался).
func Rl() *readline.Instance {
	mu.Lock()
	defer mu.Unlock()
	return rl
}

// ReadLine выводит приглашение и читает строку, обрезая пробелы по краям.
// Возвращает io.EOF, если stdin закрыт или readline не инициализирован.
func ReadLine(prompt string) (string, error) {
	r := Rl()
	if r == nil {
		return "", io.EOF
	}
	r.SetPrompt(prompt)
	line, err := r.Readline()
	return strings.TrimSpace(line), err
}

// ReadSecret читает строку без эха. Приглашение печатается в Stdout.
func ReadSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", ErrNoTerminal
	}
	Print(prompt)
	secret, err := term.ReadPassword(fd)
	Println()
	if err != nil {
		return "", errors.Wrap(err, "read secret")
	}
	return string(secret), nil
}

// Stdout возвращает текущий writer стандартного вывода.
func Stdout() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return out
}

// Stderr возвращает текущий writer ошибок.
func Stderr() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return errOut
}

// Print печатает значения в Stdout без перевода строки.
func Print(a ...any) {
	fmt.Fprint(Stdout(), a...)
}

// Println печатает значения в Stdout и добавляет перевод строки.
func Println(a ...any) {
	fmt.Fprintln(Stdout(), a...)
}

// Printf форматирует строку и печатает её в Stdout.
func Printf(format string, a ...any) {
	fmt.Fprintf(Stdout(), format, a...)
}

// ErrPrintln печатает значения в Stderr и добавляет перевод строки.
func ErrPrintln(a ...any) {
	fmt.Fprintln(Stderr(), a...)
}

// ErrPrintf форматирует строку и печатает её в Stderr.
func ErrPrintf(format string, a ...any) {
	fmt.Fprintf(Stderr(), format, a...)
}

// Pf возвращает pretty-строку значения.
func Pf(v any) string {
	return fmt.Sprintf("%# v\n", pretty.Formatter(v))
}

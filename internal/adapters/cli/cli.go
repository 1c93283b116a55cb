// Package cli — интерактивная консоль ридера истории.
// Сервис стартует фоном, читает команды из readline и работает поверх сессии ридера:
// список чатов, открытие чата по названию, постраничное чтение истории, поиск по тексту
// и выгрузка истории в файл. Start/Stop идемпотентны.
package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"telegram-reader/internal/adapters/telegram/tdapi"
	"telegram-reader/internal/domain/reader"
	"telegram-reader/internal/domain/search"
	"telegram-reader/internal/infra/logger"
	"telegram-reader/internal/infra/pr"
	versioninfo "telegram-reader/internal/support/version"
)

// commandDescriptor описывает одну CLI-команду: её имя и краткое описание для help.
type commandDescriptor struct {
	name        string
	description string
}

// commandDescriptors — реестр доступных команд. Рендерится в help и подсказки.
// Важно: имена должны совпадать с кейсами в handleCommand().
var commandDescriptors = []commandDescriptor{
	{name: "help", description: "Show available commands with short descriptions"},
	{name: "chats", description: "List the first 100 chats with their kinds"},
	{name: "open", description: "Open a chat by its exact title: open <title>"},
	{name: "more", description: "Print the next messages of the open chat: more [n]"},
	{name: "reset", description: "Restart reading the open chat from the newest message"},
	{name: "grep", description: "Search the whole history of the open chat: grep <text>"},
	{name: "save", description: "Export the whole history of the open chat as JSON lines: save <file>"},
	{name: "whoami", description: "Display information about the current account"},
	{name: "version", description: "Print reader version"},
	{name: "exit", description: "Stop CLI and terminate the reader"},
}

// Reader — операции сессии, которые нужны консоли.
type Reader interface {
	Me(ctx context.Context) (*tdapi.User, error)
	ListChats(ctx context.Context) ([]tdapi.Chat, error)
	ResolveChatID(ctx context.Context, name string) (int64, bool, error)
	History(chatID, fromMessageID int64) *reader.HistoryIterator
}

// Options настраивает консоль.
type Options struct {
	PrintLimit     int           // сколько сообщений печатает more без аргумента
	RequestTimeout time.Duration // таймаут одной команды; 0 — без таймаута
}

// Service инкапсулирует CLI и интегрируется в жизненный цикл приложения.
type Service struct {
	rd      Reader
	stopApp context.CancelFunc // внешняя остановка приложения (exit, Ctrl-C на пустой строке)
	opts    Options

	// Состояние чтения: открытый чат и итератор с курсором, переживающий вызовы more.
	mu       sync.Mutex
	chatID   int64
	chatName string
	it       *reader.HistoryIterator

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	done      chan struct{} // закрывается по завершении цикла run
	onceStart sync.Once
	onceStop  sync.Once
}

// NewService создаёт CLI-сервис.
func NewService(rd Reader, stopApp context.CancelFunc, opts Options) *Service {
	if opts.PrintLimit <= 0 {
		opts.PrintLimit = reader.HistoryPageSize
	}
	return &Service{rd: rd, stopApp: stopApp, opts: opts, done: make(chan struct{})}
}

// Start запускает основной цикл CLI в отдельной горутине. Повторные вызовы игнорируются.
func (s *Service) Start(ctx context.Context) {
	s.onceStart.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		s.wg.Go(func() {
			defer close(s.done)
			s.run(runCtx)
		})
	})
}

// Stop прерывает readline, отменяет локальный контекст и дожидается завершения цикла.
func (s *Service) Stop() {
	s.onceStop.Do(func() {
		if rl := pr.Rl(); rl != nil {
			pr.InterruptReadline()
		}
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
	})
}

// Done закрывается, когда цикл CLI завершился (exit, EOF, Stop).
func (s *Service) Done() <-chan struct{} {
	return s.done
}

// run — основной цикл: печатает подсказку и читает команды построчно.
func (s *Service) run(ctx context.Context) {
	logger.Debug("CLI run started")
	pr.SetPrompt("> ")
	pr.Println("CLI started. Enter commands:", joinCommandNames(commandDescriptors))
	pr.Println("Press '?' or type 'help' for detailed descriptions.")
	installKeyHandlers(s.stopApp)

	for {
		if ctx.Err() != nil {
			logger.Debug("CLI: context canceled")
			return
		}

		line, err := pr.ReadLine(s.prompt())
		if err != nil {
			logger.Debug("CLI: deactivated", zap.Error(err))
			if s.stopApp != nil {
				s.stopApp()
			}
			return
		}

		if s.handleCommand(ctx, line) {
			logger.Debugf("CLI: command %q requested exit", line)
			return
		}
	}
}

// prompt показывает название открытого чата.
func (s *Service) prompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chatName == "" {
		return "> "
	}
	return s.chatName + "> "
}

// installKeyHandlers подключает обработчики специальных клавиш для readline:
//   - '?' — печать help без отправки символа в текущую строку;
//   - Ctrl-C на пустой строке — мягкая остановка приложения и прерывание readline;
//   - Ctrl-C на непустой строке — очистка текущей строки.
func installKeyHandlers(stop context.CancelFunc) {
	rl := pr.Rl()
	if rl == nil || rl.Config == nil {
		return
	}

	prev := rl.Config.Listener
	rl.Config.SetListener(func(line []rune, pos int, key rune) ([]rune, int, bool) {
		if key == '?' {
			printCommandHelp()
			if pos > 0 && pos <= len(line) {
				trimmed := append([]rune{}, line[:pos-1]...)
				trimmed = append(trimmed, line[pos:]...)
				return trimmed, pos - 1, true
			}
			return line, pos, true
		}
		if key == 3 { //nolint: mnd // Ctrl-C (ETX, rune value 3)
			if strings.TrimSpace(string(line)) == "" {
				if stop != nil {
					stop()
				}
				pr.InterruptReadline()
				return line, pos, true
			}
			return []rune{}, 0, true
		}
		if prev != nil {
			return prev.OnChange(line, pos, key)
		}
		return nil, 0, false
	})
}

// printCommandHelp печатает список поддерживаемых команд и их описания.
func printCommandHelp() {
	for _, text := range buildCommandHelpLines(commandDescriptors) {
		pr.Println(text)
	}
}

// handleCommand разбирает введённую команду и выполняет её.
// Возвращает true, если команда инициирует завершение CLI ("exit").
func (s *Service) handleCommand(ctx context.Context, line string) bool {
	name, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	ctx, cancel := s.commandContext(ctx)
	defer cancel()

	var err error
	switch name {
	case "help":
		printCommandHelp()
	case "chats":
		err = s.handleChats(ctx)
	case "open":
		err = s.handleOpen(ctx, arg)
	case "more":
		err = s.handleMore(ctx, arg)
	case "reset":
		err = s.handleReset()
	case "grep":
		err = s.handleGrep(ctx, arg)
	case "save":
		err = s.handleSave(ctx, arg)
	case "whoami":
		err = s.handleWhoAmI(ctx)
	case "version":
		pr.Printf("%s v%s\n", versioninfo.Name, versioninfo.Version)
	case "exit":
		if s.stopApp != nil {
			s.stopApp()
		}
		return true
	case "":
	default:
		pr.Println("unknown command:", name)
	}
	if err != nil {
		pr.ErrPrintf("%s error: %v\n", name, err)
	}
	return false
}

func (s *Service) commandContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.RequestTimeout)
}

func (s *Service) handleChats(ctx context.Context) error {
	chats, err := s.rd.ListChats(ctx)
	if err != nil {
		return err
	}
	if len(chats) == 0 {
		pr.Println("No chats.")
		return nil
	}
	for _, c := range chats {
		pr.Println(FormatChat(c))
	}
	pr.Printf("Total chats: %d\n", len(chats))
	return nil
}

func (s *Service) handleOpen(ctx context.Context, title string) error {
	if title == "" {
		return errors.New("usage: open <title>")
	}
	id, ok, err := s.rd.ResolveChatID(ctx, title)
	if err != nil {
		return err
	}
	if !ok {
		pr.Printf("Chat %q not found among the first %d chats.\n", title, reader.ChatListLimit)
		return nil
	}

	s.mu.Lock()
	s.chatID, s.chatName = id, title
	s.it = s.rd.History(id, 0)
	s.mu.Unlock()

	pr.Printf("Opened %q (id %d). Type 'more' to read.\n", title, id)
	return nil
}

// handleMore печатает следующие n сообщений с места, где остановился предыдущий вызов.
func (s *Service) handleMore(ctx context.Context, arg string) error {
	n := s.opts.PrintLimit
	if arg != "" {
		v, err := strconv.Atoi(arg)
		if err != nil || v <= 0 {
			return errors.Errorf("invalid count %q", arg)
		}
		n = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.it == nil {
		return errors.New("no chat is open")
	}

	printed := 0
	for printed < n && s.it.Next(ctx) {
		pr.Println(FormatMessage(s.it.Value()))
		printed++
	}
	if err := s.it.Err(); err != nil {
		// Итератор после ошибки не продолжается: начинаем заново с сохранённого курсора.
		s.it = s.rd.History(s.chatID, s.it.Cursor())
		return err
	}
	if printed < n {
		pr.Println("-- beginning of history --")
	}
	return nil
}

func (s *Service) handleReset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chatID == 0 {
		return errors.New("no chat is open")
	}
	s.it = s.rd.History(s.chatID, 0)
	pr.Println("Reading restarted from the newest message.")
	return nil
}

func (s *Service) handleGrep(ctx context.Context, text string) error {
	matcher := search.NewMatcher(text)
	if matcher.Empty() {
		return errors.New("usage: grep <text>")
	}
	chatID, err := s.openChat()
	if err != nil {
		return err
	}
	found, err := Grep(ctx, s.rd.History(chatID, 0), matcher, func(m tdapi.Message) {
		pr.Println(FormatMessage(m))
	})
	if err != nil {
		return err
	}
	pr.Printf("Found %d messages.\n", found)
	return nil
}

func (s *Service) handleSave(ctx context.Context, path string) error {
	if path == "" {
		return errors.New("usage: save <file>")
	}
	chatID, err := s.openChat()
	if err != nil {
		return err
	}
	n, err := Export(ctx, s.rd.History(chatID, 0), path)
	if err != nil {
		return err
	}
	pr.Printf("Saved %d messages to %s\n", n, path)
	return nil
}

func (s *Service) handleWhoAmI(ctx context.Context) error {
	me, err := s.rd.Me(ctx)
	if err != nil {
		return err
	}
	pr.Println(whoAmI(me))
	return nil
}

func (s *Service) openChat() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chatID == 0 {
		return 0, errors.New("no chat is open")
	}
	return s.chatID, nil
}

// whoAmI возвращает строку с краткой информацией о текущем аккаунте.
func whoAmI(me *tdapi.User) string {
	fullname := me.FullName()
	if fullname == "" {
		fullname = "<unknown>"
	}
	if me.Username != "" {
		return fmt.Sprintf("You are: %s (@%s), id=%d", fullname, me.Username, me.ID)
	}
	return fmt.Sprintf("You are: %s, id=%d", fullname, me.ID)
}

// joinCommandNames собирает строку имён команд, разделённых запятыми, для короткой подсказки.
func joinCommandNames(descriptors []commandDescriptor) string {
	names := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		names = append(names, d.name)
	}
	return strings.Join(names, ", ")
}

// buildCommandHelpLines генерирует строки помощи вида "<name> - <description>".
func buildCommandHelpLines(descriptors []commandDescriptor) []string {
	lines := make([]string, 0, len(descriptors)+1)
	lines = append(lines, "Available commands:")
	for _, descriptor := range descriptors {
		lines = append(lines, fmt.Sprintf("  %-8s - %s", descriptor.name, descriptor.description))
	}
	return lines
}

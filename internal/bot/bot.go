// Package bot is a sample dice bot built on the chat client. It shows how a
// Handler routes classified messages to commands and answers through the
// client's throttled outbox.
package bot

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/coinchat-client/internal/core"
)

const (
	maxDice  = 100
	maxSides = 1000
)

// Pusher queues outbound chat lines; *core.Client satisfies it.
type Pusher interface {
	PushMessage(room, message string) bool
}

// Command is a bot command keyed by its keyword, such as !roll.
type Command struct {
	Keyword string
	// Usage is shown in help after the keyword.
	Usage string
	// Admin commands are hidden from help and only run for admins.
	Admin bool
	Run   func(b *DiceBot, msg *core.Message)
}

// Commands is a registry of bot commands.
type Commands map[string]Command

// Add registers cmd, replacing any command with the same keyword.
func (c Commands) Add(cmd Command) {
	c[strings.ToLower(cmd.Keyword)] = cmd
}

// Help lists public commands in keyword order.
func (c Commands) Help() string {
	names := make([]string, 0, len(c))
	for name, cmd := range c {
		if cmd.Admin {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		if usage := c[name].Usage; usage != "" {
			parts = append(parts, name+" "+usage)
		} else {
			parts = append(parts, name)
		}
	}
	return "Commands: " + strings.Join(parts, ", ")
}

// DiceBot answers !help and !roll, thanks tippers and lets admins shut it down.
type DiceBot struct {
	out      Pusher
	log      zerolog.Logger
	admins   map[string]struct{}
	shutdown func()
	commands Commands

	mu      sync.Mutex
	rng     *rand.Rand
	balance float64
}

// Option customizes a DiceBot.
type Option func(*DiceBot)

// WithAdmins sets the users allowed to run admin commands.
func WithAdmins(names ...string) Option {
	return func(b *DiceBot) {
		for _, name := range names {
			b.admins[strings.ToLower(name)] = struct{}{}
		}
	}
}

// WithShutdown sets what !#shutdown calls.
func WithShutdown(fn func()) Option {
	return func(b *DiceBot) { b.shutdown = fn }
}

// WithRand makes rolls deterministic.
func WithRand(rng *rand.Rand) Option {
	return func(b *DiceBot) { b.rng = rng }
}

// WithLogger sets the bot logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(b *DiceBot) {
		if logger != nil {
			b.log = logger.With().Str("component", "dicebot").Logger()
		}
	}
}

// New builds a bot that answers through out.
func New(out Pusher, opts ...Option) *DiceBot {
	b := &DiceBot{
		out:      out,
		log:      zerolog.Nop(),
		admins:   make(map[string]struct{}),
		commands: Commands{},
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	b.commands.Add(Command{Keyword: "!help", Run: (*DiceBot).printHelp})
	b.commands.Add(Command{Keyword: "!roll", Usage: "[dice] [sides]", Run: (*DiceBot).rollDice})
	b.commands.Add(Command{Keyword: "!#shutdown", Admin: true, Run: (*DiceBot).shutdownCmd})

	for _, opt := range opts {
		opt(b)
	}
	return b
}

// HandleMessage implements core.Handler.
func (b *DiceBot) HandleMessage(msg *core.Message) {
	if msg.IsTip {
		b.mu.Lock()
		b.balance += msg.TipAmount
		b.mu.Unlock()
		b.reply(msg, "Thank you for your tip. Your contribution is greatly welcomed!")
		return
	}

	cmd, ok := b.commands[msg.Command()]
	if !ok {
		return
	}
	if cmd.Admin && !b.isAdmin(msg.User) {
		b.log.Warn().Str("user", msg.User).Str("command", cmd.Keyword).Msg("admin command refused")
		return
	}
	b.log.Debug().Str("user", msg.User).Str("room", msg.Room).Str("command", cmd.Keyword).Msg("command")
	cmd.Run(b, msg)
}

// Balance is the total tipped to the bot since it started.
func (b *DiceBot) Balance() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance
}

func (b *DiceBot) isAdmin(user string) bool {
	_, ok := b.admins[strings.ToLower(user)]
	return ok
}

func (b *DiceBot) reply(msg *core.Message, text string) {
	if !b.out.PushMessage(msg.Room, msg.User+": "+text) {
		b.log.Warn().Str("room", msg.Room).Msg("reply rejected")
	}
}

func (b *DiceBot) printHelp(msg *core.Message) {
	b.reply(msg, b.commands.Help())
}

func (b *DiceBot) rollDice(msg *core.Message) {
	args := msg.Args()
	dice := intArg(args, 0, 1, maxDice)
	sides := intArg(args, 1, 6, maxSides)

	rolls := make([]string, dice)
	total := 0
	b.mu.Lock()
	for i := range rolls {
		n := 1 + b.rng.IntN(sides)
		total += n
		rolls[i] = strconv.Itoa(n)
	}
	b.mu.Unlock()

	b.reply(msg, fmt.Sprintf("You rolled %dD%d and got %d. %s", dice, sides, total, strings.Join(rolls, ", ")))
}

func (b *DiceBot) shutdownCmd(msg *core.Message) {
	b.log.Info().Str("user", msg.User).Msg("shutdown requested")
	if b.shutdown != nil {
		b.shutdown()
	}
}

// intArg reads args[i] as a positive int, falling back to def and capping at limit.
func intArg(args []string, i, def, limit int) int {
	if i >= len(args) {
		return def
	}
	n, err := strconv.Atoi(args[i])
	if err != nil || n <= 0 {
		return def
	}
	if n > limit {
		return limit
	}
	return n
}

package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/anycall-go/anycall/pkg/rpc"
	"github.com/chzyer/readline"
	"github.com/kballard/go-shellquote"
	"github.com/urfave/cli"
	"go.uber.org/zap"
)

// builtins are the demo functions "register" can expose; a real program
// would register its own application callables instead.
var builtins = map[string]rpc.Callable{
	"echo": func(_ context.Context, args []interface{}, _ map[string]interface{}) (interface{}, error) {
		if len(args) == 0 {
			return "", nil
		}
		return args[0], nil
	},
	"upper": func(_ context.Context, args []interface{}, _ map[string]interface{}) (interface{}, error) {
		s, _ := firstString(args)
		return strings.ToUpper(s), nil
	},
	"reverse": func(_ context.Context, args []interface{}, _ map[string]interface{}) (interface{}, error) {
		s, _ := firstString(args)
		runes := []rune(s)
		for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
			runes[i], runes[j] = runes[j], runes[i]
		}
		return string(runes), nil
	},
}

func firstString(args []interface{}) (string, bool) {
	if len(args) == 0 {
		return "", false
	}
	s, ok := args[0].(string)
	return s, ok
}

type shell struct {
	sys      *rpc.RPCSystem
	log      *zap.Logger
	registry map[string]string // local name -> function url
	rl       *readline.Instance
}

func runShell(c *cli.Context) error {
	var log *zap.Logger
	var err error
	if c.Bool("debug") {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	sys := rpc.NewTCPSystem(c.String("host"), c.Int("port"), rpc.WithLogger(log))
	if err := sys.Open(); err != nil {
		return fmt.Errorf("open rpc system: %w", err)
	}
	defer sys.Close()

	rl, err := readline.New(fmt.Sprintf("anycall(%s:%d)> ", c.String("host"), c.Int("port")))
	if err != nil {
		return fmt.Errorf("start readline: %w", err)
	}
	defer rl.Close()

	sh := &shell{sys: sys, log: log, registry: make(map[string]string), rl: rl}
	return sh.loop()
}

func (sh *shell) loop() error {
	for {
		line, err := sh.rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		args, err := shellquote.Split(line)
		if err != nil {
			fmt.Println("parse error:", err)
			continue
		}
		if len(args) == 0 {
			continue
		}

		if err := sh.dispatch(args[0], args[1:]); err != nil {
			if err == io.EOF {
				return nil
			}
			fmt.Println("error:", err)
		}
	}
}

func (sh *shell) dispatch(cmd string, args []string) error {
	switch cmd {
	case "register":
		return sh.cmdRegister(args)
	case "functions":
		return sh.cmdFunctions()
	case "call":
		return sh.cmdCall(args)
	case "quit", "exit":
		return io.EOF
	case "help":
		fmt.Println("commands: register <builtin>, functions, call <url> [args...], quit")
		return nil
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
}

func (sh *shell) cmdRegister(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: register <echo|upper|reverse>")
	}
	fn, ok := builtins[args[0]]
	if !ok {
		return fmt.Errorf("no builtin function named %q", args[0])
	}
	url := sh.sys.GetFunctionURL(fn)
	sh.registry[args[0]] = url
	fmt.Printf("registered %s at %s\n", args[0], url)
	return nil
}

func (sh *shell) cmdFunctions() error {
	if len(sh.registry) == 0 {
		fmt.Println("(none registered)")
		return nil
	}
	for name, url := range sh.registry {
		fmt.Printf("%s -> %s\n", name, url)
	}
	return nil
}

func (sh *shell) cmdCall(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: call <url> [args...]")
	}
	stub, err := sh.sys.CreateFunctionStub(args[0])
	if err != nil {
		return err
	}

	callArgs := make([]interface{}, 0, len(args)-1)
	for _, a := range args[1:] {
		callArgs = append(callArgs, coerce(a))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	h, err := stub.Invoke(ctx, callArgs, nil)
	if err != nil {
		return fmt.Errorf("invoke: %w", err)
	}
	val, err := h.Wait(ctx)
	if err != nil {
		return fmt.Errorf("call failed: %w", err)
	}
	fmt.Printf("=> %v\n", val)
	return nil
}

// coerce turns a shell token into an int64 or bool when it unambiguously
// looks like one, and leaves it a string otherwise — enough for demo
// purposes without a full argument grammar.
func coerce(tok string) interface{} {
	if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(tok); err == nil {
		return b
	}
	return tok
}

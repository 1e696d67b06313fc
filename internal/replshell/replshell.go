// Package replshell provides an in-process REPL for interacting with a
// running sfp pool. The REPL is a client of the pool, not its owner: it
// only reads and mutates through exported, stable methods and never starts
// or stops components. Grounded on the teacher's internal/repl package
// (Scanner-driven read-eval-print loop, command table, printf-style output
// helper), adapted from the teacher's query/source domain to sfp's
// contain/insert/config domain.
package replshell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"sfp/internal/notify"
	"sfp/internal/pool"
	"sfp/internal/svcconfig"
)

// REPL is an interactive read-eval-print loop over a live Pool.
type REPL struct {
	pool   *pool.Pool
	config svcconfig.Store
	notify *notify.Signal

	in  *bufio.Scanner
	out io.Writer

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a REPL attached to an already-running Pool. config and
// notify may be nil: without config, "config" commands report that no
// store is attached; without notify, "watch" reports that no signal is
// attached and returns at once.
func New(p *pool.Pool, config svcconfig.Store, sig *notify.Signal, in io.Reader, out io.Writer) *REPL {
	ctx, cancel := context.WithCancel(context.Background())
	return &REPL{
		pool:   p,
		config: config,
		notify: sig,
		in:     bufio.NewScanner(in),
		out:    out,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Run starts the REPL loop. It blocks until the user exits or the
// REPL's context is cancelled.
func (r *REPL) Run() error {
	r.printf("sfp REPL. Type 'help' for commands.\n")
	r.printf("> ")

	for r.in.Scan() {
		if err := r.ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSpace(r.in.Text())
		if line == "" {
			r.printf("> ")
			continue
		}

		if exit := r.execute(line); exit {
			return nil
		}

		r.printf("> ")
	}

	return r.in.Err()
}

// Close cancels the REPL's context, unblocking any pending "watch".
func (r *REPL) Close() { r.cancel() }

func (r *REPL) execute(line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}

	cmd, args := parts[0], parts[1:]

	switch cmd {
	case "help":
		r.cmdHelp()
	case "contain":
		r.cmdContain(args)
	case "insert":
		r.cmdInsert(args)
	case "batch_contain":
		r.cmdBatchContain(args)
	case "batch_insert":
		r.cmdBatchInsert(args)
	case "chunks":
		r.cmdChunks(args)
	case "config":
		r.cmdConfig(args)
	case "watch":
		r.cmdWatch(args)
	case "exit", "quit":
		return true
	default:
		r.printf("Unknown command: %s. Type 'help' for commands.\n", cmd)
	}

	return false
}

func (r *REPL) cmdHelp() {
	r.printf(`Commands:
  help                                Show this help
  contain <appid> <group> <key>       Check whether key is a member
  insert <appid> <group> <key>        Add key to the group
  batch_contain <appid> <group> <key...>
                                       Check membership for many keys
  batch_insert <appid> <group> <key...>
                                       Add many keys to the group
  chunks <appid> <group>              Show the group's current chunk count
  config get <appid>                  Show the persisted AppConfig
  config set <appid> <field>=<value>...
                                       Persist AppConfig fields
  watch                               Block until the pool signals activity
  exit                                 Exit the REPL

Keys are given as plain text and treated as raw bytes.
`)
}

func (r *REPL) cmdContain(args []string) {
	if len(args) != 3 {
		r.printf("Usage: contain <appid> <group> <key>\n")
		return
	}
	appid, group, key := args[0], args[1], args[2]
	found, err := r.pool.Contain(r.ctx, appid, group, []byte(key))
	if err != nil {
		r.printf("Error: %v\n", err)
		return
	}
	r.printf("%v\n", found)
}

func (r *REPL) cmdInsert(args []string) {
	if len(args) != 3 {
		r.printf("Usage: insert <appid> <group> <key>\n")
		return
	}
	appid, group, key := args[0], args[1], args[2]
	if err := r.pool.Insert(r.ctx, appid, group, []byte(key)); err != nil {
		r.printf("Error: %v\n", err)
		return
	}
	r.printf("ok\n")
}

func (r *REPL) cmdBatchContain(args []string) {
	if len(args) < 3 {
		r.printf("Usage: batch_contain <appid> <group> <key...>\n")
		return
	}
	appid, group := args[0], args[1]
	keys := toByteSlices(args[2:])
	results, err := r.pool.BatchContain(r.ctx, appid, group, keys)
	if err != nil {
		r.printf("Error: %v\n", err)
		return
	}
	for i, key := range args[2:] {
		r.printf("%s: %v\n", key, results[i])
	}
}

func (r *REPL) cmdBatchInsert(args []string) {
	if len(args) < 3 {
		r.printf("Usage: batch_insert <appid> <group> <key...>\n")
		return
	}
	appid, group := args[0], args[1]
	keys := toByteSlices(args[2:])
	if err := r.pool.BatchInsert(r.ctx, appid, group, keys); err != nil {
		r.printf("Error: %v\n", err)
		return
	}
	r.printf("ok: %d keys inserted\n", len(keys))
}

func (r *REPL) cmdChunks(args []string) {
	if len(args) != 2 {
		r.printf("Usage: chunks <appid> <group>\n")
		return
	}
	appid, group := args[0], args[1]
	count, err := r.pool.ChunkCount(r.ctx, appid, group)
	if err != nil {
		r.printf("Error: %v\n", err)
		return
	}
	r.printf("%d chunks\n", count)
}

func (r *REPL) cmdConfig(args []string) {
	if r.config == nil {
		r.printf("No config store attached to this REPL.\n")
		return
	}
	if len(args) == 0 {
		r.printf("Usage: config get <appid> | config set <appid> <field>=<value>...\n")
		return
	}
	switch args[0] {
	case "get":
		r.cmdConfigGet(args[1:])
	case "set":
		r.cmdConfigSet(args[1:])
	default:
		r.printf("Unknown config subcommand: %s\n", args[0])
	}
}

func (r *REPL) cmdConfigGet(args []string) {
	if len(args) != 1 {
		r.printf("Usage: config get <appid>\n")
		return
	}
	cfg, err := r.config.Load(r.ctx, args[0])
	if err != nil {
		r.printf("Error: %v\n", err)
		return
	}
	if cfg == nil {
		r.printf("No config persisted for %s (engine defaults apply).\n", args[0])
		return
	}
	r.printf("appid:           %s\n", cfg.AppID)
	r.printf("fp_rate:         %v\n", cfg.FPRate)
	r.printf("window_seconds:  %d\n", cfg.WindowSeconds)
	r.printf("strategy_kind:   %s\n", cfg.StrategyKind)
	r.printf("strategy_params: %v\n", cfg.StrategyParams)
	r.printf("try_max:         %d\n", cfg.TryMax)
}

func (r *REPL) cmdConfigSet(args []string) {
	if len(args) < 1 {
		r.printf("Usage: config set <appid> <field>=<value>...\n")
		return
	}
	appid := args[0]
	cfg, err := r.config.Load(r.ctx, appid)
	if err != nil {
		r.printf("Error: %v\n", err)
		return
	}
	if cfg == nil {
		cfg = &svcconfig.AppConfig{AppID: appid}
	}
	for _, arg := range args[1:] {
		field, value, ok := strings.Cut(arg, "=")
		if !ok {
			r.printf("Invalid field assignment: %s (expected field=value)\n", arg)
			return
		}
		if err := applyConfigField(cfg, field, value); err != nil {
			r.printf("Error: %v\n", err)
			return
		}
	}
	if err := r.config.Save(r.ctx, *cfg); err != nil {
		r.printf("Error: %v\n", err)
		return
	}
	r.printf("ok\n")
}

func applyConfigField(cfg *svcconfig.AppConfig, field, value string) error {
	switch field {
	case "fp_rate":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("fp_rate: %w", err)
		}
		cfg.FPRate = v
	case "window_seconds":
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("window_seconds: %w", err)
		}
		cfg.WindowSeconds = v
	case "strategy_kind":
		cfg.StrategyKind = value
	case "strategy_params":
		params, err := parseInt64List(value)
		if err != nil {
			return fmt.Errorf("strategy_params: %w", err)
		}
		cfg.StrategyParams = params
	case "try_max":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("try_max: %w", err)
		}
		cfg.TryMax = v
	default:
		return fmt.Errorf("unknown field %q", field)
	}
	return nil
}

func parseInt64List(value string) ([]int64, error) {
	parts := strings.Split(value, ",")
	out := make([]int64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (r *REPL) cmdWatch(args []string) {
	if r.notify == nil {
		r.printf("No notify signal attached to this REPL.\n")
		return
	}
	r.printf("waiting for activity (ctrl-c to stop)...\n")
	select {
	case <-r.notify.C():
		r.printf("activity detected\n")
	case <-r.ctx.Done():
	}
}

func toByteSlices(args []string) [][]byte {
	out := make([][]byte, len(args))
	for i, a := range args {
		out[i] = []byte(a)
	}
	return out
}

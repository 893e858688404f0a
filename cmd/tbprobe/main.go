// Command tbprobe queries the tablebase oracle for a single position and
// prints the evaluation with the ranked move list.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/endgamekit/tablebase"
	"github.com/endgamekit/tablebase/config"
	"github.com/endgamekit/tablebase/types"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (optional)")
	side := flag.String("side", "", "perspective: white or black (default: side to move)")
	limit := flag.Int("moves", 5, "number of candidate moves to print")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: tbprobe [flags] <FEN>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	fen := flag.Arg(0)

	if err := run(*configPath, fen, *side, *limit); err != nil {
		fmt.Fprintf(os.Stderr, "tbprobe: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, fen, side string, limit int) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := config.Defaults()
	if configPath != "" {
		loaded, err := config.NewLoader().LoadFromFile(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	svc, err := tablebase.New(ctx, cfg)
	if err != nil {
		return err
	}
	if err := svc.Start(); err != nil {
		return err
	}
	defer svc.Stop()

	requestingSide, err := resolveSide(fen, side)
	if err != nil {
		return err
	}

	ev, err := svc.Evaluation(ctx, fen, requestingSide)
	if err != nil {
		return err
	}

	fmt.Printf("position: %s\n", fen)
	fmt.Printf("perspective: %s\n", requestingSide)
	fmt.Printf("category: %s (wdl %+d)\n", ev.Category, ev.WDL)
	if ev.DTZ != nil {
		fmt.Printf("dtz: %d\n", *ev.DTZ)
	}
	if ev.DTM != nil {
		fmt.Printf("dtm: %d\n", *ev.DTM)
	}

	moves, err := svc.TopMoves(ctx, fen, requestingSide, limit)
	if err != nil {
		return err
	}

	if len(moves) > 0 {
		fmt.Println("moves:")
		for i, m := range moves {
			line := fmt.Sprintf("  %d. %s  %s (wdl %+d)", i+1, m.UCI, m.Category, m.WDL)
			if m.DTM != nil {
				line += fmt.Sprintf(" dtm=%d", *m.DTM)
			} else if m.DTZ != nil {
				line += fmt.Sprintf(" dtz=%d", *m.DTZ)
			}
			fmt.Println(line)
		}
	}

	return nil
}

func resolveSide(fen, side string) (types.Color, error) {
	if side == "" {
		fields := strings.Fields(fen)
		if len(fields) >= 2 {
			return types.ParseColor(fields[1])
		}
		return types.White, nil
	}
	return types.ParseColor(side)
}

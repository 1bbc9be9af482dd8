// Command fsamatch-cli is an interactive prompt for testing fuzzy and near
// matching against a fsadict store without going through the HTTP or IPC
// front ends.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"fsadict/internal/config"
	"fsadict/internal/segment"
	"fsadict/internal/service"
)

func main() {
	storeRoot := flag.String("data", "data/", "path to the segment store")
	configPath := flag.String("config", "", "path to config file")
	debug := flag.Bool("d", false, "enable debug logging")
	flag.Parse()

	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	} else {
		cfg.Store.Root = *storeRoot
	}

	dir := segment.NewDir(cfg.Store.Root)
	if err := dir.Init(); err != nil {
		log.Fatalf("failed to initialize store directory: %v", err)
	}
	result, err := segment.Recover(dir, segment.RecoveryOptions{VerifySegmentChecksums: true})
	if err != nil {
		log.Fatalf("recovery failed: %v", err)
	}

	deletions := segment.NewDeletionIndex()
	mgr := segment.NewManager(dir, deletions, result.Manifest, nil)
	matcher := service.NewMatcher(mgr, cfg.Matching)

	log.Print("fsamatch CLI")
	log.Infof("store loaded: generation %d, %d segment(s)", result.Generation, len(result.Manifest.Segments))
	log.Print("commands: fuzzy <query> [k] | near <query> [greedy] | quit")

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		handleLine(matcher, strings.TrimSpace(line))
	}
}

func handleLine(matcher *service.Matcher, line string) {
	if line == "" {
		return
	}
	fields := strings.Fields(line)
	cmd := fields[0]

	switch cmd {
	case "quit", "exit":
		os.Exit(0)
	case "fuzzy":
		if len(fields) < 2 {
			log.Error("usage: fuzzy <query> [max-edit-distance]")
			return
		}
		k := 0
		if len(fields) >= 3 {
			k, _ = strconv.Atoi(fields[2])
		}
		runFuzzy(matcher, fields[1], k)
	case "near":
		if len(fields) < 2 {
			log.Error("usage: near <query> [greedy]")
			return
		}
		greedy := len(fields) >= 3 && fields[2] == "greedy"
		runNear(matcher, fields[1], greedy)
	default:
		log.Errorf("unknown command: %s", cmd)
	}
}

func runFuzzy(matcher *service.Matcher, query string, k int) {
	it, err := matcher.Fuzzy(context.Background(), []byte(query), k, 0)
	if err != nil {
		log.Errorf("fuzzy query failed: %v", err)
		return
	}
	defer it.Close()
	printMatches(it)
}

func runNear(matcher *service.Matcher, query string, greedy bool) {
	it, err := matcher.Near(context.Background(), []byte(query), 0, greedy)
	if err != nil {
		log.Errorf("near query failed: %v", err)
		return
	}
	defer it.Close()
	printMatches(it)
}

func printMatches(it *service.ClosingIterator) {
	count := 0
	for {
		m, ok := it.Next()
		if !ok {
			break
		}
		count++
		fmt.Printf("  %-30s score=%-4d value=%s\n", string(m.Key()), m.Score(), string(m.Value()))
	}
	if err := it.Err(); err != nil {
		log.Errorf("iteration error: %v", err)
		return
	}
	log.Infof("%d match(es)", count)
}

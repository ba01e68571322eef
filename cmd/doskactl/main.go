package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/matheus3301/doska/internal/api"
	"github.com/matheus3301/doska/internal/config"
	"github.com/matheus3301/doska/internal/instance"
	"github.com/matheus3301/doska/internal/listing"
	"google.golang.org/protobuf/types/known/structpb"
)

func main() {
	instanceFlag := flag.String("instance", "", "instance name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	limitFlag := flag.Int("limit", 20, "publications to list")
	flag.Parse()

	name := instance.Resolve(*instanceFlag)
	if err := instance.ValidateName(name); err != nil {
		fatalf("%v", err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "init" {
		variant := string(listing.Classifieds)
		if len(args) >= 2 {
			variant = args[1]
		}
		cmdInit(name, variant)
		return
	}

	c, err := api.Dial(instance.SocketPath(name))
	if err != nil {
		fatalf("cannot connect to daemon for instance %q: %v", name, err)
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, *jsonFlag)
	case "retractions":
		cmdRetractions(ctx, c, *limitFlag, *jsonFlag)
	case "cancel":
		if len(args) < 2 {
			fatalf("usage: doskactl cancel <user-id>")
		}
		cmdCancel(ctx, c, args[1], *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: doskactl [--instance <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  init [variant]      Write a default config.toml (classifieds or rides)")
	fmt.Fprintln(os.Stderr, "  status              Show daemon status")
	fmt.Fprintln(os.Stderr, "  retractions         List pending deletes and recent publications")
	fmt.Fprintln(os.Stderr, "  cancel <user-id>    Discard a user's draft")
}

func cmdInit(name, variant string) {
	v, err := listing.ParseVariant(variant)
	if err != nil {
		fatalf("%v", err)
	}
	path := instance.ConfigPath(name)
	if _, err := os.Stat(path); err == nil {
		fatalf("%s already exists", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		fatalf("%v", err)
	}

	cfg := config.DefaultFor(v)
	if err := config.Save(path, cfg); err != nil {
		fatalf("write config: %v", err)
	}
	fmt.Printf("Wrote %s\n", path)
	fmt.Printf("Set bot.handle and bot.feed_chat_id, then put %s in %s\n",
		config.TokenEnv, instance.Dir(name)+"/.env")
}

func cmdStatus(ctx context.Context, c *api.Client, jsonOut bool) {
	resp, err := c.GetStatus(ctx)
	if err != nil {
		fatalf("%v", err)
	}
	if jsonOut {
		outputJSON(resp.AsMap())
		return
	}
	f := resp.GetFields()
	fmt.Printf("Instance:     %s\n", f["instance"].GetStringValue())
	fmt.Printf("Variant:      %s\n", f["variant"].GetStringValue())
	fmt.Printf("Status:       %s (since %s)\n", f["status"].GetStringValue(), f["status_since"].GetStringValue())
	fmt.Printf("Uptime:       %s\n", (time.Duration(f["uptime_ms"].GetNumberValue()) * time.Millisecond).Round(time.Second))
	fmt.Printf("Drafts:       %.0f\n", f["active_drafts"].GetNumberValue())
	fmt.Printf("Pending:      %.0f (%.0f armed)\n", f["pending_retractions"].GetNumberValue(), f["armed_timers"].GetNumberValue())
	fmt.Printf("Published/24h: %.0f\n", f["published_24h"].GetNumberValue())
}

func cmdRetractions(ctx context.Context, c *api.Client, limit int, jsonOut bool) {
	resp, err := c.ListRetractions(ctx, limit)
	if err != nil {
		fatalf("%v", err)
	}
	if jsonOut {
		outputJSON(resp.AsMap())
		return
	}

	pending := resp.GetFields()["pending"].GetListValue().GetValues()
	fmt.Printf("Pending deletes: %d\n", len(pending))
	for _, v := range pending {
		f := v.GetStructValue().GetFields()
		fmt.Printf("  %s  chat %.0f  msgs %s  at %s\n",
			f["id"].GetStringValue(),
			f["chat_id"].GetNumberValue(),
			joinNumbers(f["message_ids"]),
			f["delete_at"].GetStringValue(),
		)
	}

	recent := resp.GetFields()["recent"].GetListValue().GetValues()
	fmt.Printf("\nRecent publications: %d\n", len(recent))
	for _, v := range recent {
		f := v.GetStructValue().GetFields()
		state := "live"
		if at, ok := f["retracted_at"]; ok {
			state = "retracted " + at.GetStringValue()
		}
		fmt.Printf("  %s  %-9s user %.0f  %q  (%s)\n",
			f["published_at"].GetStringValue(),
			f["category"].GetStringValue(),
			f["user_id"].GetNumberValue(),
			f["summary"].GetStringValue(),
			state,
		)
	}
}

func cmdCancel(ctx context.Context, c *api.Client, arg string, jsonOut bool) {
	userID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		fatalf("invalid user id %q", arg)
	}
	cancelled, err := c.CancelDraft(ctx, userID)
	if err != nil {
		fatalf("%v", err)
	}
	if jsonOut {
		outputJSON(map[string]any{"user_id": userID, "cancelled": cancelled})
		return
	}
	if cancelled {
		fmt.Printf("Draft of user %d discarded.\n", userID)
	} else {
		fmt.Printf("User %d had no draft in progress.\n", userID)
	}
}

func joinNumbers(v *structpb.Value) string {
	var nums []int
	for _, n := range v.GetListValue().GetValues() {
		nums = append(nums, int(n.GetNumberValue()))
	}
	sort.Ints(nums)
	b, _ := json.Marshal(nums)
	return string(b)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"dev.vasic.ultramemory/internal/registry"
	"dev.vasic.ultramemory/internal/statedir"
)

// runSchedule implements the `schedule` command group. These verbs operate
// on the persisted JSON records; when the Durable Registry is reachable,
// `add` also inserts a matching Postgres row and `run` calls MarkRun, while
// `remove`, `enable` and `disable` change only the JSON file. Installing an
// OS-level timer is out of scope and never attempted here.
func runSchedule(a *app, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: ultramemory schedule <add|list|remove|enable|disable|run|logs> ...")
		os.Exit(1)
	}

	root, err := ensureStateDir(a)
	if err != nil {
		fatal(a, err)
	}

	switch args[0] {
	case "add":
		scheduleAdd(a, root, args[1:])
	case "list":
		scheduleList(root)
	case "remove":
		scheduleRemove(a, root, args[1:])
	case "enable":
		scheduleSetEnabled(a, root, args[1:], true)
	case "disable":
		scheduleSetEnabled(a, root, args[1:], false)
	case "run":
		scheduleRun(a, root, args[1:])
	case "logs":
		scheduleLogs(root, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown schedule verb: %s\n", args[0])
		os.Exit(1)
	}
}

func scheduleAdd(a *app, root string, args []string) {
	fs := flag.NewFlagSet("schedule add", flag.ExitOnError)
	cron := fs.String("c", "", "5-field POSIX cron expression")
	argsStr := fs.String("a", "", "arguments passed to the agent, as a single string")
	fs.Parse(args)

	if fs.NArg() < 1 || *cron == "" {
		fmt.Fprintln(os.Stderr, `usage: ultramemory schedule add <agent> -c "cron" -a "args"`)
		os.Exit(1)
	}
	agentName := fs.Arg(0)

	id := newScheduleID(root)
	record := statedir.ScheduleRecord{
		ID:      id,
		Name:    fmt.Sprintf("%s-%s", agentName, id[:8]),
		Agent:   agentName,
		Cron:    *cron,
		Args:    *argsStr,
		Enabled: true,
		Created: time.Now(),
	}

	records, err := statedir.LoadSchedules(root)
	if err != nil {
		fatal(a, err)
	}
	records = append(records, record)
	if err := statedir.SaveSchedules(root, records); err != nil {
		fatal(a, err)
	}

	if a.pg != nil && a.schedules != nil {
		argsJSON, _ := json.Marshal(*argsStr)
		if _, err := a.schedules.Insert(context.Background(), registry.Schedule{
			Name: record.Name, Agent: agentName, CronExpr: *cron,
			Args: argsJSON, Enabled: true,
		}); err != nil {
			a.log.WithError(err).Warn("mirroring schedule to durable registry failed")
		}
	}

	fmt.Printf("scheduled %s id=%s cron=%q\n", agentName, id, *cron)
}

func scheduleList(root string) {
	records, err := statedir.LoadSchedules(root)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if len(records) == 0 {
		fmt.Println("no schedules")
		return
	}
	for _, r := range records {
		state := "enabled"
		if !r.Enabled {
			state = "disabled"
		}
		last := "never"
		if r.LastRun != nil {
			last = r.LastRun.Format(time.RFC3339)
		}
		fmt.Printf("%s  %-10s %-20s %-25s %-8s last_run=%s\n", r.ID, r.Agent, r.Name, r.Cron, state, last)
	}
}

func scheduleRemove(a *app, root string, args []string) {
	id := requireScheduleID(args, "remove")
	records, err := statedir.LoadSchedules(root)
	if err != nil {
		fatal(a, err)
	}
	kept := records[:0]
	found := false
	for _, r := range records {
		if r.ID == id {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	if !found {
		fmt.Fprintf(os.Stderr, "no such schedule: %s\n", id)
		os.Exit(1)
	}
	if err := statedir.SaveSchedules(root, kept); err != nil {
		fatal(a, err)
	}
	fmt.Printf("removed %s\n", id)
}

func scheduleSetEnabled(a *app, root string, args []string, enabled bool) {
	verb := "enable"
	if !enabled {
		verb = "disable"
	}
	id := requireScheduleID(args, verb)
	records, err := statedir.LoadSchedules(root)
	if err != nil {
		fatal(a, err)
	}
	found := false
	for i := range records {
		if records[i].ID == id {
			records[i].Enabled = enabled
			found = true
		}
	}
	if !found {
		fmt.Fprintf(os.Stderr, "no such schedule: %s\n", id)
		os.Exit(1)
	}
	if err := statedir.SaveSchedules(root, records); err != nil {
		fatal(a, err)
	}
	fmt.Printf("%sd %s\n", verb, id)
}

func scheduleRun(a *app, root string, args []string) {
	id := requireScheduleID(args, "run")
	records, err := statedir.LoadSchedules(root)
	if err != nil {
		fatal(a, err)
	}
	var target *statedir.ScheduleRecord
	for i := range records {
		if records[i].ID == id {
			target = &records[i]
		}
	}
	if target == nil {
		fmt.Fprintf(os.Stderr, "no such schedule: %s\n", id)
		os.Exit(1)
	}

	if err := a.connectCore(context.Background()); err != nil {
		fatal(a, err)
	}
	defer a.close()

	runArgs := strings.Fields(target.Args)
	runAgent(a, append([]string{"run", target.Agent}, runArgs...))

	now := time.Now()
	target.LastRun = &now
	if err := statedir.SaveSchedules(root, records); err != nil {
		a.log.WithError(err).Warn("updating last_run failed")
	}
	if a.pg != nil && a.schedules != nil {
		if err := a.schedules.MarkRun(context.Background(), id); err != nil {
			a.log.WithError(err).Warn("marking durable registry run failed")
		}
	}
}

func scheduleLogs(root string, args []string) {
	id := requireScheduleID(args, "logs")
	records, err := statedir.LoadSchedules(root)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	for _, r := range records {
		if r.ID == id {
			last := "never"
			if r.LastRun != nil {
				last = r.LastRun.Format(time.RFC3339)
			}
			fmt.Printf("%s  agent=%s cron=%q args=%q created=%s last_run=%s\n", r.ID, r.Agent, r.Cron, r.Args, r.Created.Format(time.RFC3339), last)
			return
		}
	}
	fmt.Fprintf(os.Stderr, "no such schedule: %s\n", id)
	os.Exit(1)
}

func requireScheduleID(args []string, verb string) string {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "usage: ultramemory schedule %s <id>\n", verb)
		os.Exit(1)
	}
	return args[0]
}

// newScheduleID mints a short, locally-unique schedule ID — a UUID would be
// equally valid, but schedule records are a small, human-browsed JSON file,
// so a compact timestamp-derived ID keeps `schedule list` readable.
func newScheduleID(root string) string {
	existing, _ := statedir.LoadSchedules(root)
	ts := time.Now().UnixNano()
	id := fmt.Sprintf("sch-%x", ts)
	for _, r := range existing {
		if r.ID == id {
			id = fmt.Sprintf("sch-%x-2", ts)
			break
		}
	}
	return id
}

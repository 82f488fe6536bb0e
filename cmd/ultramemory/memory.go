package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"dev.vasic.ultramemory/internal/model"
)

// multiFlag collects repeated `-m k=v` occurrences, per §6's "`-m` accepts
// multiple" note.
type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }
func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

func metadataFromMap(in map[string]any) model.Metadata {
	meta := model.Metadata{CreatedAt: time.Now(), UpdatedAt: time.Now(), Extra: map[string]any{}}
	for k, v := range in {
		switch k {
		case "source":
			if s, ok := v.(string); ok {
				meta.Source = s
			}
		default:
			meta.Extra[k] = v
		}
	}
	return meta
}

func parseMetaFlags(pairs []string) map[string]any {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out
}

func runMemory(a *app, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: ultramemory memory <add|query|count|analyze|consolidate|delete|delete-all> ...")
		os.Exit(1)
	}
	if err := a.connectCore(context.Background()); err != nil {
		fatal(a, err)
	}
	defer a.close()

	switch args[0] {
	case "add":
		memoryAdd(a, args[1:])
	case "query":
		memoryQuery(a, args[1:])
	case "count":
		memoryCount(a)
	case "analyze":
		memoryAnalyze(a)
	case "consolidate":
		memoryConsolidate(a, args[1:])
	case "delete":
		memoryDelete(a, args[1:])
	case "delete-all":
		memoryDeleteAll(a, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown memory verb: %s\n", args[0])
		os.Exit(1)
	}
}

func memoryAdd(a *app, args []string) {
	fs := flag.NewFlagSet("memory add", flag.ExitOnError)
	var meta multiFlag
	fs.Var(&meta, "m", "metadata key=value, repeatable")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: ultramemory memory add <content|path|url> [-m k=v ...]")
		os.Exit(1)
	}
	input := fs.Arg(0)
	extra := parseMetaFlags(meta)

	ctx := context.Background()
	processed, err := a.processor.Process(ctx, input)
	if err != nil {
		fatal(a, fmt.Errorf("processing input: %w", err))
	}

	chunks := a.processor.Chunk(processed.Text)
	if len(chunks) == 0 {
		chunks = []string{processed.Text}
	}

	added := 0
	var lastID string
	for i, chunk := range chunks {
		meta := model.Metadata{
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
			SourceType:  processed.SourceType,
			ContentType: model.ContentText,
			ChunkIndex:  i,
			TotalChunks: len(chunks),
			Extra:       map[string]any{},
		}
		for k, v := range processed.Metadata {
			meta.Extra[k] = v
		}
		for k, v := range extra {
			if k == "source" {
				if s, ok := v.(string); ok {
					meta.Source = s
				}
				continue
			}
			meta.Extra[k] = v
		}
		if meta.Source == "" {
			meta.Source = input
		}

		result, err := a.coord.Add(ctx, chunk, meta)
		if err != nil {
			a.log.WithError(err).WithField("chunk", i).Warn("add failed")
			continue
		}
		added++
		lastID = result.ID
	}

	fmt.Printf("added %d chunk(s), last id=%s\n", added, lastID)
}

func memoryQuery(a *app, args []string) {
	fs := flag.NewFlagSet("memory query", flag.ExitOnError)
	limit := fs.Int("l", 10, "result limit")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: ultramemory memory query <text> [-l N]")
		os.Exit(1)
	}
	text := strings.Join(fs.Args(), " ")

	result, err := a.coord.Query(context.Background(), text, *limit, true)
	if err != nil {
		fatal(a, fmt.Errorf("query failed: %w", err))
	}

	fmt.Printf("cache_hit=%v vector_hits=%d graph_hits=%d\n", result.CacheHit, len(result.Vector), len(result.Graph))
	for i, r := range result.Vector {
		preview := r.Content
		if len(preview) > 120 {
			preview = preview[:120] + "..."
		}
		fmt.Printf("%2d. [%.3f] %s  %s\n", i+1, r.Score, r.ID, preview)
	}
}

func memoryCount(a *app) {
	counts, err := a.coord.Count(context.Background())
	if err != nil {
		fatal(a, fmt.Errorf("count failed: %w", err))
	}
	fmt.Printf("vector=%d graph=%d\n", counts.Vector, counts.Graph)
}

func memoryAnalyze(a *app) {
	summary, err := a.consolidator.Analyze(context.Background())
	if err != nil {
		fatal(a, fmt.Errorf("analyze failed: %w", err))
	}
	fmt.Printf("%s health score: %.1f/100 (%d documents)\n", healthEmoji(summary.HealthScore), summary.HealthScore, summary.TotalDocuments)
	fmt.Printf("  empty=%d too_short=%d too_long=%d exact_dup=%d missing_metadata=%d encoding_issues=%d low_quality=%d\n",
		summary.EmptyContent, summary.TooShort, summary.TooLong, summary.ExactDuplicates, summary.MissingMetadata, summary.EncodingIssues, summary.LowQuality)
	for source, n := range summary.BySource {
		fmt.Printf("  source %-12s %d\n", source, n)
	}
}

// healthEmoji mirrors the 🟢/🟡/🔴 band the insight document itself uses.
func healthEmoji(score float64) string {
	switch {
	case score >= 90:
		return "\U0001F7E2"
	case score >= 70:
		return "\U0001F7E1"
	default:
		return "\U0001F534"
	}
}

func memoryConsolidate(a *app, args []string) {
	fs := flag.NewFlagSet("memory consolidate", flag.ExitOnError)
	force := fs.Bool("force-full", false, "force a full (non-incremental) pass")
	fs.Parse(args)

	report, err := a.consolidator.Consolidate(context.Background(), *force)
	if err != nil {
		fatal(a, fmt.Errorf("consolidate failed: %w", err))
	}

	fmt.Printf("%s health score: %.1f/100 (%s)\n", healthEmoji(report.Analysis.HealthScore), report.Analysis.HealthScore, report.Duration)
	fmt.Printf("  changed=%d incremental_synced=%d\n", report.ChangedDocuments, report.IncrementalSynced)
	fmt.Printf("  duplicates purged: exact=%d semantic=%d fuzzy=%d malformed=%d\n",
		report.ExactDuplicatesPurged, report.SemanticDuplicatesPurged, report.FuzzyDuplicatesPurged, report.MalformedPurged)
	fmt.Printf("  entities=%d mentions=%d similar_to=%d\n", report.EntitiesUpserted, report.MentionsCreated, report.SimilarToCreated)
	fmt.Printf("  orphans found=%d deleted=%d\n", report.OrphansFound, report.OrphansDeleted)
	fmt.Printf("  fixpoint iterations=%d entity_links=%d\n", report.FixpointIterations, report.EntityLinksCreated)
	if report.InsightDocumentID != "" {
		fmt.Printf("  insight document: %s\n", report.InsightDocumentID)
	}
	for phase, msg := range report.Errors {
		fmt.Printf("  warning[%s]: %s\n", phase, msg)
	}

	if report.Analysis.HealthScore < 70 {
		flagLowHealth(a, report.Analysis.HealthScore)
	}
}

// flagLowHealth drops a heartbeat checklist line when a consolidation pass
// ends in the red band, so the next person reviewing heartbeat.md sees it
// without having to re-run consolidate first.
func flagLowHealth(a *app, score float64) {
	root, err := ensureStateDir(a)
	if err != nil {
		return
	}
	title := fmt.Sprintf("investigate low memory health score (%.1f/100)", score)
	if err := statedirAppendHeartbeat(root, title, "health"); err != nil {
		a.log.WithError(err).Warn("writing heartbeat.md failed")
	}
}

func memoryDelete(a *app, args []string) {
	fs := flag.NewFlagSet("memory delete", flag.ExitOnError)
	confirm := fs.Bool("confirm", false, "actually perform the deletion")
	preserve := fs.Bool("preserve-connections", false, "refuse if incident graph edges exist")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: ultramemory memory delete <id> [--confirm] [--preserve-connections]")
		os.Exit(1)
	}
	id := fs.Arg(0)
	if !*confirm {
		fmt.Printf("dry run: pass --confirm to delete %s\n", id)
		return
	}

	result, err := a.coord.Delete(context.Background(), id, *preserve)
	if err != nil {
		fatal(a, fmt.Errorf("delete failed: %w", err))
	}
	recordDeletionLog(a, id, "delete", string(result.Status), "")
	fmt.Printf("status=%s vector_ok=%v graph_ok=%v\n", result.Status, result.VectorOK, result.GraphOK)
}

func memoryDeleteAll(a *app, args []string) {
	fs := flag.NewFlagSet("memory delete-all", flag.ExitOnError)
	confirm := fs.Bool("confirm", false, "actually perform the deletion")
	fs.Parse(args)

	if !*confirm {
		fmt.Println("dry run: pass --confirm to delete every document")
		return
	}

	result, err := a.coord.DeleteAll(context.Background(), *confirm)
	if err != nil {
		fatal(a, fmt.Errorf("delete-all failed: %w", err))
	}
	recordDeletionLog(a, "*", "delete_all", string(result.Status), "")
	fmt.Printf("status=%s\n", result.Status)
}

// recordDeletionLog mirrors the deletion to logs/deletions.jsonl, the
// file-based counterpart to the Coordinator's own Postgres audit row.
func recordDeletionLog(a *app, id, action, status, replacedBy string) {
	root, err := ensureStateDir(a)
	if err != nil {
		return
	}
	if err := appendDeletionLog(root, id, action, status, replacedBy); err != nil {
		a.log.WithError(err).Warn("writing deletions.jsonl failed")
	}
}

func fatal(a *app, err error) {
	a.log.WithError(err).Error("command failed")
	os.Exit(1)
}

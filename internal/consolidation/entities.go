package consolidation

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"dev.vasic.ultramemory/internal/vectordb"
)

// entityPersonRe, entityCompanyRe and entityProjectRe are phase 8's entity
// regex set — distinct from the enricher's Person/Organization/Location
// extraction, this family targets the narrower Person/Company/Project
// classes the Consolidation Engine upserts as graph entities.
var (
	entityPersonRe        = regexp.MustCompile(`\b(?:Mr\.|Mrs\.|Ms\.|Dr\.)?\s*[A-Z][a-z]+\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?`)
	entityCompanySuffixRe = regexp.MustCompile(`\b[A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)*\s+(?:Inc|LLC|Corp|Ltd|SA|SL|Corporation|Company)\b`)
	entityProjectRe1      = regexp.MustCompile(`\b[Pp]roject\s+[A-Z][a-zA-Z0-9]+`)
	entityProjectRe2      = regexp.MustCompile(`\b[A-Z][a-zA-Z]+\s+Project\b`)
)

// knownCompanies is the whitelist half of the Company regex family.
var knownCompanies = []string{
	"Google", "Microsoft", "Amazon", "Apple", "Meta", "OpenAI", "Anthropic", "IBM", "Oracle", "Salesforce",
}

type extractedEntity struct {
	entityType string // "Person", "Company", "Project"
	name       string
}

func extractEntityMentions(content string) []extractedEntity {
	var out []extractedEntity
	seen := make(map[string]bool)

	add := func(entityType, name string) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		key := entityType + ":" + strings.ToLower(name)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, extractedEntity{entityType: entityType, name: name})
	}

	for _, m := range entityPersonRe.FindAllString(content, -1) {
		add("Person", strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(strings.TrimPrefix(strings.TrimPrefix(m, "Mr."), "Mrs."), "Ms."), "Dr.")))
	}
	for _, m := range entityCompanySuffixRe.FindAllString(content, -1) {
		add("Company", m)
	}
	for _, name := range knownCompanies {
		if strings.Contains(content, name) {
			add("Company", name)
		}
	}
	for _, m := range entityProjectRe1.FindAllString(content, -1) {
		add("Project", m)
	}
	for _, m := range entityProjectRe2.FindAllString(content, -1) {
		add("Project", m)
	}

	return out
}

// extractEntities is phase 8: run the entity regex set over every document,
// upsert one graph node per unique (type, lowercased name), and link each
// mention with a Document-[:MENTIONS]->Entity edge, capped at
// mentionsCapPerEntity per entity to bound fan-out.
func (e *Engine) extractEntities(ctx context.Context, points []vectordb.Result) (entities int, mentions int, err error) {
	mentionCount := make(map[string]int)
	upserted := make(map[string]bool)

	for _, p := range points {
		for _, ent := range extractEntityMentions(p.Content) {
			nodeID := entityNodeID(ent.entityType, ent.name)
			if !upserted[nodeID] {
				if _, addErr := e.graph.AddNode(ctx, nodeID, ent.name, map[string]any{
					"entity_type": ent.entityType,
				}, []string{"Entity", ent.entityType}); addErr != nil {
					e.log.WithError(addErr).WithField("entity", nodeID).Debug("entity node upsert failed")
					continue
				}
				upserted[nodeID] = true
				entities++
			}

			if mentionCount[nodeID] >= mentionsCapPerEntity {
				continue
			}
			if _, relErr := e.graph.AddRelationship(ctx, p.ID, nodeID, "MENTIONS", nil); relErr != nil {
				e.log.WithError(relErr).WithField("entity", nodeID).Debug("MENTIONS edge creation failed")
				continue
			}
			mentionCount[nodeID]++
			mentions++
		}
	}

	return entities, mentions, nil
}

func entityNodeID(entityType, name string) string {
	return fmt.Sprintf("entity:%s:%s", strings.ToLower(entityType), strings.ToLower(name))
}

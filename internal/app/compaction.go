package app

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

const (
	// summaryDelimiter separates digests covering disjoint time ranges.
	summaryDelimiter = "\n\n---\n\n"

	// fallbackMaxPaths caps the number of file paths in a fallback digest.
	fallbackMaxPaths = 20
)

const digestInstruction = `You compress conversation history for a coding agent.
Summarize the transcript below. Preserve decisions, established facts, task
status, and file changes. Omit any preamble; return only the summary.`

// Compactor keeps the effective conversation size under a fixed token budget
// by digesting older turns into the session summary. Lossy by design.
type Compactor struct {
	Client       ChatClient
	Logger       *Logger
	SummaryModel string
	BudgetTokens int
	KeepRecent   int
}

func NewCompactor(client ChatClient, logger *Logger, summaryModel string, budgetTokens, keepRecent int) *Compactor {
	if budgetTokens <= 0 {
		budgetTokens = 8192
	}
	if keepRecent <= 0 {
		keepRecent = 10
	}
	return &Compactor{
		Client:       client,
		Logger:       logger,
		SummaryModel: summaryModel,
		BudgetTokens: budgetTokens,
		KeepRecent:   keepRecent,
	}
}

// Compact runs one continuity check over the session and mutates it in place
// when the live window is over budget. Running it again without new messages
// is a no-op. It never fails: when the digest request errors, a deterministic
// local summary is used instead.
func (c *Compactor) Compact(ctx context.Context, sess *Session) bool {
	window := sess.Window()
	if EstimateMessagesTokens(window) < c.BudgetTokens {
		return false
	}
	if len(window) <= c.KeepRecent {
		// The protected tail alone exceeds the budget; compacting would
		// remove nothing.
		return false
	}

	toCompact := window[:len(window)-c.KeepRecent]

	digest, err := c.requestDigest(ctx, toCompact)
	if err != nil || strings.TrimSpace(digest) == "" {
		if err != nil {
			c.Logger.Warn("digest request failed, using fallback summary", map[string]interface{}{
				"error": err.Error(),
			})
		}
		digest = fallbackDigest(toCompact)
	}

	sess.FoldSummary(digest, toCompact[len(toCompact)-1].CreatedAt)
	return true
}

func (c *Compactor) requestDigest(ctx context.Context, msgs []Message) (string, error) {
	if c.Client == nil {
		return "", fmt.Errorf("no model client for digest")
	}
	var transcript strings.Builder
	for _, m := range msgs {
		content := strings.Join(strings.Fields(m.Content), " ")
		fmt.Fprintf(&transcript, "[%s] %s\n", strings.ToUpper(m.Role), content)
	}
	req := []ChatMessage{
		{Role: "system", Content: digestInstruction},
		{Role: "user", Content: transcript.String()},
	}
	return c.Client.Chat(ctx, req, ChatOptions{Model: c.SummaryModel, Temperature: 0.1})
}

var pathTokenRe = regexp.MustCompile(`[\w./~-]*/[\w./-]+\.\w+|[\w-]+\.\w{1,5}`)

// fallbackDigest is the deterministic local summary used when the digest
// request fails: per-role message counts plus file-path-like tokens seen in
// the compacted text.
func fallbackDigest(msgs []Message) string {
	counts := map[string]int{}
	pathSet := map[string]struct{}{}
	for _, m := range msgs {
		counts[m.Role]++
		for _, tok := range pathTokenRe.FindAllString(m.Content, -1) {
			if len(pathSet) >= fallbackMaxPaths {
				break
			}
			pathSet[tok] = struct{}{}
		}
	}

	roles := make([]string, 0, len(counts))
	for role := range counts {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	var b strings.Builder
	b.WriteString("Compacted conversation segment.\nMessages:")
	for _, role := range roles {
		fmt.Fprintf(&b, " %s=%d", role, counts[role])
	}
	if len(pathSet) > 0 {
		paths := make([]string, 0, len(pathSet))
		for p := range pathSet {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		b.WriteString("\nFiles mentioned: ")
		b.WriteString(strings.Join(paths, ", "))
	}
	return b.String()
}

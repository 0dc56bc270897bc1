// Package session implements the bounded, relevance-ranked context
// stream for one agent session: scoring, compression, pruning and
// checkpoint/restore of types.ContextItem values.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Omkar-S-Kulkarni/2fast2mcplocalmcpserverclient/internal/contextwindow"
	"github.com/Omkar-S-Kulkarni/2fast2mcplocalmcpserverclient/internal/types"
)

const (
	highRelevance   = 0.7
	mediumRelevance = 0.3
	recencyWindow   = 24 * time.Hour

	lexicalWeight = 0.7
	recencyWeight = 0.3

	topHighRendered   = 5
	topMediumRendered = 3
)

// Manager owns one session's append-only ContextItem stream.
type Manager struct {
	sessionID   string
	checkpointDir string
	items       []types.ContextItem
}

// NewManager creates a context manager for sessionID, persisting
// checkpoints under checkpointDir.
func NewManager(sessionID, checkpointDir string) *Manager {
	return &Manager{sessionID: sessionID, checkpointDir: checkpointDir}
}

// Add appends a ContextItem with a fresh id and timestamp.
func (m *Manager) Add(itemType types.ContextItemType, content any) types.ContextItem {
	now := time.Now()
	item := types.ContextItem{
		ID:        newItemID(itemType, content, now),
		Content:   content,
		Type:      itemType,
		Timestamp: now,
	}
	m.items = append(m.items, item)
	return item
}

// Items returns the current item list (not a copy; callers must not
// mutate Content).
func (m *Manager) Items() []types.ContextItem {
	return m.items
}

func newItemID(itemType types.ContextItemType, content any, ts time.Time) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%v", ts.UnixNano(), itemType, content)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// ScoreBatch computes a hybrid relevance score for every item against
// query: 0.7 lexical Jaccard overlap + 0.3 linear recency decay over
// 24 hours. Scores are written back to the items; the returned slice
// is sorted by descending relevance_score (stable, so ties keep
// insertion order).
func (m *Manager) ScoreBatch(query string) []types.ContextItem {
	queryWords := wordSet(query)
	now := time.Now()

	for i := range m.items {
		lexical := jaccard(queryWords, wordSet(contentText(m.items[i].Content)))
		recency := recencyScore(m.items[i].Timestamp, now)
		m.items[i].RelevanceScore = lexicalWeight*lexical + recencyWeight*recency
	}

	sorted := make([]types.ContextItem, len(m.items))
	copy(sorted, m.items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RelevanceScore > sorted[j].RelevanceScore
	})
	return sorted
}

func wordSet(text string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func recencyScore(ts, now time.Time) float64 {
	age := now.Sub(ts)
	if age <= 0 {
		return 1
	}
	if age >= recencyWindow {
		return 0
	}
	return 1 - float64(age)/float64(recencyWindow)
}

func contentText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

// Compress scores items against query, partitions them into high
// (>0.7), medium (0.3-0.7) and low (<0.3) relevance bands, and renders
// a textual block: the top five high-relevance items verbatim
// followed by up to three medium-relevance items as one-liners.
// Low-relevance items are discarded from the rendering. The rendered
// lines are then cut to maxTokens with contextwindow.FitLines: lines are
// kept in order until the next one would exceed the estimated budget,
// and the header line is always kept. maxTokens <= 0 disables the cut.
func (m *Manager) Compress(query string, maxTokens int) string {
	scored := m.ScoreBatch(query)

	var high, medium []types.ContextItem
	for _, item := range scored {
		switch {
		case item.RelevanceScore > highRelevance:
			high = append(high, item)
		case item.RelevanceScore >= mediumRelevance:
			medium = append(medium, item)
		}
	}

	lines := []string{"Relevant context:"}

	limit := topHighRendered
	if len(high) < limit {
		limit = len(high)
	}
	for _, item := range high[:limit] {
		lines = append(lines, fmt.Sprintf("- [%s] %s", item.Type, contentText(item.Content)))
	}

	mLimit := topMediumRendered
	if len(medium) < mLimit {
		mLimit = len(medium)
	}
	for _, item := range medium[:mLimit] {
		lines = append(lines, fmt.Sprintf("- (%s) %s", item.Type, oneLiner(contentText(item.Content))))
	}

	kept := contextwindow.FitLines(lines, maxTokens)
	if len(kept) == 0 {
		kept = lines[:1]
	}
	return strings.Join(kept, "\n") + "\n"
}

func oneLiner(text string) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	const max = 120
	if len(text) > max {
		return text[:max] + "..."
	}
	return text
}

// PruneByRelevance scores items against query and retains only the
// top keepTopN.
func (m *Manager) PruneByRelevance(query string, keepTopN int) {
	scored := m.ScoreBatch(query)
	if keepTopN >= len(scored) {
		m.items = scored
		return
	}
	m.items = scored[:keepTopN]
}

// checkpointFile is the wire format written by Checkpoint / read by Restore.
type checkpointFile struct {
	SessionID string              `json:"session_id"`
	Label     string              `json:"label"`
	SavedAt   time.Time           `json:"saved_at"`
	Items     []types.ContextItem `json:"items"`
}

func (m *Manager) checkpointPath(label string) string {
	return filepath.Join(m.checkpointDir, fmt.Sprintf("%s_%s.json", m.sessionID, label))
}

// Checkpoint serialises the current item list to a durable JSON file
// named by session id and label.
func (m *Manager) Checkpoint(label string) error {
	if err := os.MkdirAll(m.checkpointDir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	cp := checkpointFile{
		SessionID: m.sessionID,
		Label:     label,
		SavedAt:   time.Now(),
		Items:     m.items,
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	return os.WriteFile(m.checkpointPath(label), data, 0o600)
}

// RestoreCheckpoint replaces the current item list atomically with the
// one saved under label. On parse failure the current list is
// unchanged and an error is returned.
func (m *Manager) RestoreCheckpoint(label string) error {
	data, err := os.ReadFile(m.checkpointPath(label))
	if err != nil {
		return fmt.Errorf("read checkpoint: %w", err)
	}
	var cp checkpointFile
	if err := json.Unmarshal(data, &cp); err != nil {
		return fmt.Errorf("parse checkpoint: %w", err)
	}
	m.items = cp.Items
	return nil
}

// Fork produces a new session manager whose item list is a shallow
// copy of the current one; subsequent mutations on either manager are
// independent.
func (m *Manager) Fork(newSessionID string) *Manager {
	forked := &Manager{
		sessionID:     newSessionID,
		checkpointDir: m.checkpointDir,
		items:         make([]types.ContextItem, len(m.items)),
	}
	copy(forked.items, m.items)
	return forked
}

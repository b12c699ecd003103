package okrstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"gopkg.in/yaml.v3"

	"okrdash/internal/okr"
)

// ExportDocuments groups objectives into one document per scope and cycle.
// Documents and the objectives inside them are ordered deterministically so
// that rendering the same data twice gives identical bytes.
func ExportDocuments(objectives []okr.Objective) []Document {
	type key struct {
		scope Scope
		cycle string
	}
	grouped := make(map[key][]okr.Objective)
	for _, obj := range objectives {
		k := key{scope: Scope(obj.OwnerType), cycle: obj.CycleID}
		grouped[k] = append(grouped[k], obj)
	}

	docs := make([]Document, 0, len(grouped))
	for k, objs := range grouped {
		sorted := append([]okr.Objective(nil), objs...)
		SortByLevel(sorted)
		docs = append(docs, Document{
			Scope:      k.scope,
			CycleID:    k.cycle,
			Objectives: sorted,
			Source:     DocumentFileName(k.scope, k.cycle),
		})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Source < docs[j].Source })
	return docs
}

// DocumentFileName is the export file name for a scope and cycle.
func DocumentFileName(scope Scope, cycleID string) string {
	if cycleID == "" {
		return fmt.Sprintf("%s.yml", scope)
	}
	return fmt.Sprintf("%s-%s.yml", sanitize(cycleID), scope)
}

// RenderDocument serializes a document in the layout LoadFromDir reads.
func RenderDocument(doc Document) ([]byte, error) {
	raw := rawDocument{
		Scope:   string(doc.Scope),
		CycleID: doc.CycleID,
	}
	for _, obj := range doc.Objectives {
		ro := rawObjective{
			ID:          obj.ID,
			Title:       obj.Title,
			Description: obj.Description,
			OwnerID:     obj.OwnerID,
			ParentID:    obj.ParentID,
			Status:      string(obj.Status),
		}
		if obj.CycleID != doc.CycleID {
			ro.CycleID = obj.CycleID
		}
		for _, kr := range obj.KeyResults {
			target, current, weight := kr.Target, kr.Current, kr.Weight
			rk := rawKeyResult{
				ID:          kr.ID,
				Title:       kr.Title,
				OwnerID:     kr.OwnerID,
				Target:      &target,
				Unit:        kr.Unit,
				Status:      string(kr.Status),
				Links:       kr.Links,
				LastUpdated: kr.UpdatedAt,
			}
			if current != 0 {
				rk.Current = &current
			}
			if weight != 1 {
				rk.Weight = &weight
			}
			ro.KeyResults = append(ro.KeyResults, rk)
		}
		raw.Objectives = append(raw.Objectives, ro)
	}

	data, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", doc.Source, err)
	}
	return data, nil
}

// RenderAll renders every document keyed by its file name.
func RenderAll(docs []Document) (map[string][]byte, error) {
	out := make(map[string][]byte, len(docs))
	for _, doc := range docs {
		data, err := RenderDocument(doc)
		if err != nil {
			return nil, err
		}
		out[filepath.Base(doc.Source)] = data
	}
	return out, nil
}

// DiffDocuments returns a unified diff from the current rendering to the
// incoming one, file by file. An empty string means nothing would change.
func DiffDocuments(current, incoming map[string][]byte) (string, error) {
	names := make(map[string]struct{}, len(current)+len(incoming))
	for name := range current {
		names[name] = struct{}{}
	}
	for name := range incoming {
		names[name] = struct{}{}
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	var diffStrings []string
	for _, name := range sorted {
		diff := difflib.UnifiedDiff{
			A:        difflib.SplitLines(string(current[name])),
			B:        difflib.SplitLines(string(incoming[name])),
			FromFile: filepath.Join("current", name),
			ToFile:   filepath.Join("incoming", name),
			Context:  3,
		}
		diffText, err := difflib.GetUnifiedDiffString(diff)
		if err != nil {
			return "", fmt.Errorf("diff %s: %w", name, err)
		}
		if strings.TrimSpace(diffText) != "" {
			diffStrings = append(diffStrings, diffText)
		}
	}
	return strings.Join(diffStrings, "\n"), nil
}

// WriteDocuments renders docs into dir, replacing files atomically.
func WriteDocuments(dir string, docs []Document) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	rendered, err := RenderAll(docs)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rendered))
	for name := range rendered {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := writeFileAtomic(filepath.Join(dir, name), rendered[name]); err != nil {
			return nil, err
		}
	}
	return names, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

func sanitize(value string) string {
	safe := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, value)
	if safe == "" {
		return "cycle"
	}
	return safe
}

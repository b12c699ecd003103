package okrstore

import (
	"context"
	"fmt"

	"okrdash/internal/records"
)

// ImportResult counts what an import wrote.
type ImportResult struct {
	Cycles     int `json:"cycles"`
	Objectives int `json:"objectives"`
	KeyResults int `json:"key_results"`
	Employees  int `json:"employees"`
}

// Import writes a loaded okrs directory into the repository: org directory
// first, then cycles, then objectives parents before children so every
// alignment check sees its parent.
func Import(ctx context.Context, repo *records.OKRRepository, store *Store) (ImportResult, error) {
	var res ImportResult
	if store == nil {
		return res, fmt.Errorf("nothing to import")
	}

	if store.Directory != nil {
		if err := repo.SaveDirectory(ctx, store.Directory); err != nil {
			return res, fmt.Errorf("import org: %w", err)
		}
		res.Employees = len(store.Directory.Employees)
	}

	for _, c := range store.Cycles {
		if _, err := repo.SaveCycle(ctx, c); err != nil {
			return res, fmt.Errorf("import cycle %s: %w", c.ID, err)
		}
		res.Cycles++
	}

	for _, obj := range store.Objectives() {
		saved, err := repo.SaveObjective(ctx, obj)
		if err != nil {
			return res, fmt.Errorf("import objective %s: %w", obj.ID, err)
		}
		res.Objectives++
		res.KeyResults += len(saved.KeyResults)
	}
	return res, nil
}

// DryRun renders what an import would change as a unified diff between the
// repository's current objectives and the loaded documents.
func DryRun(ctx context.Context, repo *records.OKRRepository, store *Store) (string, error) {
	existing, err := repo.ListObjectives(ctx, "")
	if err != nil {
		return "", err
	}

	// only the scopes and cycles present in the import are compared
	incomingDocs := ExportDocuments(store.Objectives())
	touched := make(map[string]struct{}, len(incomingDocs))
	for _, doc := range incomingDocs {
		touched[doc.Source] = struct{}{}
	}
	var currentDocs []Document
	for _, doc := range ExportDocuments(existing) {
		if _, ok := touched[doc.Source]; ok {
			currentDocs = append(currentDocs, doc)
		}
	}

	current, err := RenderAll(currentDocs)
	if err != nil {
		return "", err
	}
	incoming, err := RenderAll(incomingDocs)
	if err != nil {
		return "", err
	}
	return DiffDocuments(current, incoming)
}

package okrstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"okrdash/internal/okr"
	"okrdash/internal/org"
)

// Files in an okrs directory that are not objective documents.
const (
	CyclesFile      = "cycles.yml"
	OrgFile         = "org.yml"
	PermissionsFile = "permissions.yml"
	SettingsFile    = "settings.yml"
)

var reservedFiles = map[string]struct{}{
	CyclesFile:      {},
	OrgFile:         {},
	PermissionsFile: {},
	SettingsFile:    {},
}

// LoadFromDir loads and validates all OKR YAML files from the provided
// directory, together with its optional cycles, org and permissions files.
func LoadFromDir(okrsDir string) (*Store, error) {
	return LoadFromDirWithSettings(okrsDir, okr.DefaultSettings())
}

// LoadFromDirWithSettings is LoadFromDir with an explicit alignment depth.
func LoadFromDirWithSettings(okrsDir string, settings okr.Settings) (*Store, error) {
	if okrsDir == "" {
		okrsDir = "okrs"
	}

	files, err := filepath.Glob(filepath.Join(okrsDir, "*.yml"))
	if err != nil {
		return nil, fmt.Errorf("scan okr dir: %w", err)
	}
	sort.Strings(files)

	var docs []Document
	var vErrs ValidationErrors

	for _, path := range files {
		if _, reserved := reservedFiles[filepath.Base(path)]; reserved {
			continue
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, fmt.Errorf("read %s: %w", path, readErr)
		}
		doc, parseErr := ParseAndValidateDocument(data, path)
		if parseErr != nil {
			if ve, ok := parseErr.(ValidationErrors); ok {
				vErrs = append(vErrs, ve...)
				continue
			}
			return nil, parseErr
		}
		docs = append(docs, doc)
	}

	cycles, cycleErrs, err := loadCycles(okrsDir)
	if err != nil {
		return nil, err
	}
	vErrs = append(vErrs, cycleErrs...)

	dir, orgErrs, err := loadOrg(okrsDir)
	if err != nil {
		return nil, err
	}
	vErrs = append(vErrs, orgErrs...)

	if len(vErrs) > 0 {
		return nil, vErrs
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no OKR documents found in %s", okrsDir)
	}

	if dupErrs := validateCrossDocumentUniqueness(docs); len(dupErrs) > 0 {
		return nil, dupErrs
	}
	if refErrs := validateReferences(docs, cycles, dir, settings); len(refErrs) > 0 {
		return nil, refErrs
	}

	perms, err := LoadPermissionsForDir(okrsDir)
	if err != nil {
		return nil, fmt.Errorf("load permissions: %w", err)
	}

	store := buildStore(docs)
	store.Cycles = cycles
	store.Directory = dir
	store.Permissions = perms
	return store, nil
}

func loadCycles(okrsDir string) ([]okr.Cycle, ValidationErrors, error) {
	path := filepath.Join(okrsDir, CyclesFile)
	data, ok, err := readOptional(path)
	if err != nil || !ok {
		return nil, nil, err
	}
	cycles, err := ParseCycles(data, path)
	if err != nil {
		if ve, ok := err.(ValidationErrors); ok {
			return nil, ve, nil
		}
		return nil, nil, err
	}
	return cycles, nil, nil
}

func loadOrg(okrsDir string) (*org.Directory, ValidationErrors, error) {
	path := filepath.Join(okrsDir, OrgFile)
	data, ok, err := readOptional(path)
	if err != nil || !ok {
		return nil, nil, err
	}
	dir, err := ParseOrg(data, path)
	if err != nil {
		if ve, ok := err.(ValidationErrors); ok {
			return nil, ve, nil
		}
		return nil, nil, err
	}
	return dir, nil, nil
}

func validateCrossDocumentUniqueness(docs []Document) ValidationErrors {
	var errs ValidationErrors

	type origin struct {
		scope Scope
		file  string
		objID string
	}
	objSeen := make(map[string]origin)
	krSeen := make(map[string]origin)

	for _, doc := range docs {
		for objIdx, obj := range doc.Objectives {
			if prev, exists := objSeen[obj.ID]; exists {
				errs = append(errs, ValidationError{
					File:    doc.Source,
					Field:   fmt.Sprintf("objectives[%d].objective_id", objIdx),
					Message: fmt.Sprintf("objective_id %q already defined in %s (%s)", obj.ID, prev.file, prev.scope),
				})
			} else {
				objSeen[obj.ID] = origin{scope: doc.Scope, file: doc.Source, objID: obj.ID}
			}

			for krIdx, kr := range obj.KeyResults {
				if prev, exists := krSeen[kr.ID]; exists {
					errs = append(errs, ValidationError{
						File:    doc.Source,
						Field:   fmt.Sprintf("objectives[%d].key_results[%d].kr_id", objIdx, krIdx),
						Message: fmt.Sprintf("kr_id %q already defined in %s (%s objective %s)", kr.ID, prev.file, prev.scope, prev.objID),
					})
					continue
				}
				krSeen[kr.ID] = origin{scope: doc.Scope, file: doc.Source, objID: obj.ID}
			}
		}
	}

	return errs
}

// validateReferences checks parent links across documents, cycle ids against
// cycles.yml and key-result links against org.yml when those files exist.
func validateReferences(docs []Document, cycles []okr.Cycle, dir *org.Directory, settings okr.Settings) ValidationErrors {
	var errs ValidationErrors

	var all []okr.Objective
	for _, doc := range docs {
		all = append(all, doc.Objectives...)
	}
	cycleIDs := make(map[string]struct{}, len(cycles))
	for _, c := range cycles {
		cycleIDs[c.ID] = struct{}{}
	}

	for _, doc := range docs {
		for objIdx, obj := range doc.Objectives {
			path := fmt.Sprintf("objectives[%d]", objIdx)
			if err := okr.CheckAlignment(obj, all, settings); err != nil {
				errs = append(errs, ValidationError{File: doc.Source, Field: path + ".parent_okr_id", Message: err.Error()})
			}
			if len(cycles) > 0 {
				if _, ok := cycleIDs[obj.CycleID]; !ok {
					errs = append(errs, ValidationError{File: doc.Source, Field: path + ".cycle_id", Message: fmt.Sprintf("unknown cycle %q", obj.CycleID)})
				}
			}
			if dir == nil {
				continue
			}
			for krIdx, kr := range obj.KeyResults {
				for linkIdx, link := range kr.Links {
					if _, ok := dir.Selection(link); !ok {
						errs = append(errs, ValidationError{
							File:    doc.Source,
							Field:   fmt.Sprintf("%s.key_results[%d].links[%d]", path, krIdx, linkIdx),
							Message: fmt.Sprintf("unknown %s %q", link.Type, link.ID),
						})
					}
				}
			}
		}
	}
	return errs
}

func buildStore(docs []Document) *Store {
	store := &Store{
		Documents:  docs,
		objectives: make(map[string]ObjectiveRecord),
		keyResults: make(map[string]KeyResultRecord),
	}

	for _, doc := range docs {
		for _, obj := range doc.Objectives {
			store.objectives[obj.ID] = ObjectiveRecord{
				Objective: obj,
				Scope:     doc.Scope,
				Source:    doc.Source,
			}
			for _, kr := range obj.KeyResults {
				store.keyResults[kr.ID] = KeyResultRecord{
					KeyResult: kr,
					Objective: obj,
					Scope:     doc.Scope,
					Source:    doc.Source,
				}
			}
		}
	}

	return store
}

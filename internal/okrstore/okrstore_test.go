package okrstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"okrdash/internal/okr"
	"okrdash/internal/records"
)

const companyDoc = `
scope: company
cycle_id: 2024-q2
objectives:
  - objective_id: C-1
    title: Grow revenue
    owner_id: ceo
    status: active
    key_results:
      - kr_id: C-1-KR1
        title: Close enterprise deals
        owner_id: ceo
        target: 10
        current: 5
      - kr_id: C-1-KR2
        title: Launch EU
        owner_id: ceo
        target: 1
        weight: 3
`

const departmentDoc = `
scope: department
cycle_id: 2024-q2
objectives:
  - objective_id: D-ENG-1
    title: Ship the platform
    owner_id: eng
    parent_okr_id: C-1
    key_results:
      - kr_id: D-ENG-1-KR1
        title: Migrate services
        owner_id: e1
        target: 20
        current: 20
        unit: services
        links:
          - type: department
            id: eng
`

const cyclesDoc = `
cycles:
  - cycle_id: 2024-q1
    name: Q1 2024
    year: 2024
    quarter: 1
    start_date: 2024-01-01
    end_date: 2024-03-31
    status: closed
  - cycle_id: 2024-q2
    name: Q2 2024
    year: 2024
    quarter: 2
    start_date: 2024-04-01
    end_date: 2024-06-30
    status: active
    is_current: true
`

const orgDoc = `
departments:
  - id: eng
    name: Engineering
positions:
  - id: be
    title: Backend Engineer
    department_id: eng
employees:
  - id: e1
    name: Ana
    department_id: eng
    position_id: be
  - id: e2
    name: Bo
    department_id: eng
    active: false
`

func TestParseAndValidateDocumentValid(t *testing.T) {
	doc, err := ParseAndValidateDocument([]byte(companyDoc), "company.yml")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if doc.Scope != ScopeCompany {
		t.Fatalf("expected scope company, got %s", doc.Scope)
	}
	if len(doc.Objectives) != 1 || len(doc.Objectives[0].KeyResults) != 2 {
		t.Fatalf("unexpected objectives/key_results count %+v", doc.Objectives)
	}
	obj := doc.Objectives[0]
	if obj.CycleID != "2024-q2" || obj.OwnerType != okr.OwnerCompany {
		t.Fatalf("document defaults not applied: %+v", obj)
	}
	if obj.KeyResults[0].Weight != 1 {
		t.Fatalf("expected default weight 1, got %v", obj.KeyResults[0].Weight)
	}
	// (50*1 + 0*3) / 4
	if obj.Progress != 13 {
		t.Fatalf("expected progress 13, got %d", obj.Progress)
	}
}

func TestParseAndValidateDocumentMissingFields(t *testing.T) {
	yml := `
scope: team
objectives:
  - objective_id: ""
    title: ""
    parent_okr_id: X
    key_results:
      - kr_id: ""
        title: ""
        target: 0
        current: -1
        status: done
        links:
          - type: squad
            id: ""
`
	_, err := ParseAndValidateDocument([]byte(yml), "bad.yml")
	if err == nil {
		t.Fatalf("expected validation error")
	}
	ves, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	want := []string{
		"scope",
		"objectives[0].objective_id",
		"objectives[0].cycle_id",
		"objectives[0].key_results[0].target",
		"objectives[0].key_results[0].current",
		"objectives[0].key_results[0].status",
		"objectives[0].key_results[0].links[0].type",
	}
	for _, field := range want {
		found := false
		for _, ve := range ves {
			if ve.Field == field {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("expected error on %s, got %v", field, ves)
		}
	}
}

func TestLoadFromDirAndLookup(t *testing.T) {
	dir := seedDir(t)

	store, err := LoadFromDir(dir)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if _, ok := store.ObjectiveLookup("C-1"); !ok {
		t.Fatalf("expected objective C-1 in lookup")
	}
	if kr, ok := store.KeyResultLookup("D-ENG-1-KR1"); !ok || kr.Objective.ID != "D-ENG-1" {
		t.Fatalf("expected D-ENG-1-KR1 mapped to D-ENG-1, got %#v", kr)
	}
	if len(store.Cycles) != 2 {
		t.Fatalf("expected 2 cycles, got %d", len(store.Cycles))
	}
	if emp, ok := store.Directory.Employee("e1"); !ok || !emp.Active {
		t.Fatalf("expected active employee e1, got %#v", emp)
	}
	if emp, _ := store.Directory.Employee("e2"); emp.Active {
		t.Fatalf("expected e2 to be inactive")
	}

	objs := store.Objectives()
	if len(objs) != 2 || objs[0].ID != "C-1" {
		t.Fatalf("expected parents first, got %v", objs)
	}
	ids := store.ListObjectiveIDs()
	if len(ids[ScopeDepartment]) != 1 || ids[ScopeDepartment][0] != "D-ENG-1" {
		t.Fatalf("unexpected ids by scope %v", ids)
	}
}

func TestLoadFromDirDuplicateObjective(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "one.yml"), companyDoc)
	writeFile(t, filepath.Join(dir, "two.yml"), strings.ReplaceAll(companyDoc, "C-1-KR", "X-KR"))

	_, err := LoadFromDir(dir)
	if err == nil {
		t.Fatalf("expected duplicate objective error")
	}
	if !strings.Contains(err.Error(), `objective_id "C-1" already defined`) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadFromDirRejectsMisalignedParent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "company.yml"), companyDoc)
	individual := strings.NewReplacer(
		"scope: department", "scope: individual",
		"D-ENG-1", "I-1",
	).Replace(departmentDoc)
	writeFile(t, filepath.Join(dir, "individual.yml"), individual)

	_, err := LoadFromDir(dir)
	if err == nil {
		t.Fatalf("expected alignment error")
	}
	if !strings.Contains(err.Error(), "objectives[0].parent_okr_id") {
		t.Fatalf("expected parent_okr_id error, got %v", err)
	}
}

func TestLoadFromDirRejectsUnknownReferences(t *testing.T) {
	dir := seedDir(t)
	writeFile(t, filepath.Join(dir, "department.yml"), strings.NewReplacer(
		"cycle_id: 2024-q2", "cycle_id: 2030-q1",
		"id: eng\n", "id: sales\n",
	).Replace(departmentDoc))

	_, err := LoadFromDir(dir)
	if err == nil {
		t.Fatalf("expected reference errors")
	}
	msg := err.Error()
	if !strings.Contains(msg, `unknown cycle "2030-q1"`) || !strings.Contains(msg, `unknown department "sales"`) {
		t.Fatalf("unexpected error: %v", msg)
	}
}

func TestParseCyclesSingleCurrent(t *testing.T) {
	doubled := strings.Replace(cyclesDoc, "status: closed", "status: closed\n    is_current: true", 1)
	_, err := ParseCycles([]byte(doubled), "cycles.yml")
	if err == nil || !strings.Contains(err.Error(), "only one cycle may be current") {
		t.Fatalf("expected single-current error, got %v", err)
	}

	cycles, err := ParseCycles([]byte(cyclesDoc), "cycles.yml")
	if err != nil {
		t.Fatalf("parse cycles: %v", err)
	}
	if !cycles[1].IsCurrent || cycles[1].Status != okr.CycleActive {
		t.Fatalf("unexpected cycle %+v", cycles[1])
	}
}

func TestPermissions(t *testing.T) {
	dir := t.TempDir()
	perm := `
permissions:
  write: ["owner_id_match", "delegated_explicitly"]
admins: ["hr-admin"]
delegations:
  owner-a:
    - assistant-1
`
	permPath := filepath.Join(dir, PermissionsFile)
	writeFile(t, permPath, perm)

	cfg, err := LoadPermissionConfig(permPath)
	if err != nil {
		t.Fatalf("load permissions: %v", err)
	}
	if !cfg.CanCheckIn("owner-a", "owner-a") {
		t.Fatalf("owner match should be allowed")
	}
	if !cfg.CanCheckIn("assistant-1", "owner-a") {
		t.Fatalf("delegated actor should be allowed")
	}
	if cfg.CanCheckIn("someone", "owner-a") {
		t.Fatalf("undelegated actor should not be allowed")
	}
	if !cfg.CanCheckIn("hr-admin", "owner-a") || !cfg.CanOverride("hr-admin") {
		t.Fatalf("admin should be allowed everything")
	}
	if cfg.CanOverride("owner-a") {
		t.Fatalf("owners cannot override progress")
	}

	writeFile(t, permPath, "permissions:\n  write: [\"everyone\"]\n")
	if _, err := LoadPermissionConfig(permPath); err == nil {
		t.Fatalf("expected unknown rule error")
	}

	if DefaultPermissions().CanCheckIn("x", "y") {
		t.Fatalf("default permissions only allow owners")
	}
}

func TestExportRoundTrip(t *testing.T) {
	store, err := LoadFromDir(seedDir(t))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	out := t.TempDir()
	files, err := WriteDocuments(out, ExportDocuments(store.Objectives()))
	if err != nil {
		t.Fatalf("write documents: %v", err)
	}
	if len(files) != 2 || files[0] != "2024-q2-company.yml" {
		t.Fatalf("unexpected export files %v", files)
	}

	writeFile(t, filepath.Join(out, CyclesFile), cyclesDoc)
	reloaded, err := LoadFromDir(out)
	if err != nil {
		t.Fatalf("reload export: %v", err)
	}
	got, _ := reloaded.ObjectiveLookup("C-1")
	want, _ := store.ObjectiveLookup("C-1")
	if got.Objective.Progress != want.Objective.Progress || len(got.Objective.KeyResults) != 2 {
		t.Fatalf("export changed objective: %+v vs %+v", got.Objective, want.Objective)
	}
}

func TestImportAndDryRun(t *testing.T) {
	ctx := context.Background()
	dir := seedDir(t)
	store, err := LoadFromDir(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	db := records.NewMemoryStore()
	repo := records.NewOKRRepository(db, okr.DefaultSettings())

	diff, err := DryRun(ctx, repo, store)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !strings.Contains(diff, "+++ incoming/2024-q2-company.yml") {
		t.Fatalf("expected additions in dry run diff, got:\n%s", diff)
	}
	if objs, _ := repo.ListObjectives(ctx, ""); len(objs) != 0 {
		t.Fatalf("dry run must not write, found %d objectives", len(objs))
	}

	res, err := Import(ctx, repo, store)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Objectives != 2 || res.KeyResults != 3 || res.Cycles != 2 || res.Employees != 2 {
		t.Fatalf("unexpected import result %+v", res)
	}

	dept, err := repo.GetObjective(ctx, "D-ENG-1")
	if err != nil {
		t.Fatalf("get imported objective: %v", err)
	}
	if dept.Progress != 100 || dept.ParentID != "C-1" {
		t.Fatalf("unexpected imported objective %+v", dept)
	}

	// importing a child whose parent is missing fails at write time
	orphan := &Store{objectives: map[string]ObjectiveRecord{
		"D-X": {Objective: okr.Objective{ID: "D-X", Title: "x", OwnerType: okr.OwnerDepartment, OwnerID: "eng", CycleID: "2024-q2", ParentID: "nope"}},
	}}
	if _, err := Import(ctx, repo, orphan); !errors.Is(err, okr.ErrParentNotFound) {
		t.Fatalf("expected parent not found, got %v", err)
	}
}

func seedDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "company.yml"), companyDoc)
	writeFile(t, filepath.Join(dir, "department.yml"), departmentDoc)
	writeFile(t, filepath.Join(dir, CyclesFile), cyclesDoc)
	writeFile(t, filepath.Join(dir, OrgFile), orgDoc)
	return dir
}

func writeFile(t *testing.T, path string, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write file %s: %v", path, err)
	}
}

package prefstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/tomfevang/datasmith/internal/generator"
	"github.com/tomfevang/datasmith/internal/populate"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "config.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func cred(name string) Credentials {
	return Credentials{
		Name:     name,
		Host:     "localhost",
		Port:     "3306",
		User:     "root",
		Password: "s3cret!",
		Dialect:  "mysql",
	}
}

func strPtr(s string) *string { return &s }

func TestCredRoundTrip(t *testing.T) {
	s := openStore(t)

	id, err := s.InsertCred(cred("shop"))
	if err != nil {
		t.Fatalf("InsertCred() error = %v", err)
	}
	if id == 0 {
		t.Fatal("InsertCred() returned id 0")
	}

	got, err := s.FindCred("shop", "localhost", "3306", "root", "mysql")
	if err != nil {
		t.Fatalf("FindCred() error = %v", err)
	}
	if got == nil {
		t.Fatal("FindCred() = nil, want the saved credential")
	}
	if got.ID != id {
		t.Errorf("FindCred().ID = %d, want %d", got.ID, id)
	}
	if got.Password != "s3cret!" {
		t.Errorf("FindCred().Password = %q, want the decoded original", got.Password)
	}
	if got.LastConnected != nil {
		t.Errorf("FindCred().LastConnected = %v, want nil before any touch", got.LastConnected)
	}

	missing, err := s.FindCred("shop", "otherhost", "3306", "root", "mysql")
	if err != nil {
		t.Fatalf("FindCred() error = %v", err)
	}
	if missing != nil {
		t.Errorf("FindCred() = %+v, want nil for an unknown tuple", missing)
	}
}

func TestPasswordObfuscatedOnDisk(t *testing.T) {
	s := openStore(t)
	if _, err := s.InsertCred(cred("shop")); err != nil {
		t.Fatalf("InsertCred() error = %v", err)
	}

	var stored string
	if err := s.db.QueryRow(`SELECT password FROM db_creds`).Scan(&stored); err != nil {
		t.Fatalf("reading raw password: %v", err)
	}
	if stored == "s3cret!" {
		t.Error("password stored in plaintext")
	}
}

func TestLastConnected(t *testing.T) {
	s := openStore(t)

	if got, err := s.LastConnected(); err != nil || got != nil {
		t.Fatalf("LastConnected() = (%v, %v), want (nil, nil) on an empty store", got, err)
	}

	aID, err := s.InsertCred(cred("a"))
	if err != nil {
		t.Fatalf("InsertCred(a) error = %v", err)
	}
	bID, err := s.InsertCred(cred("b"))
	if err != nil {
		t.Fatalf("InsertCred(b) error = %v", err)
	}

	if err := s.TouchLastConnected(bID); err != nil {
		t.Fatalf("TouchLastConnected(b) error = %v", err)
	}
	time.Sleep(25 * time.Millisecond)
	if err := s.TouchLastConnected(aID); err != nil {
		t.Fatalf("TouchLastConnected(a) error = %v", err)
	}

	got, err := s.LastConnected()
	if err != nil {
		t.Fatalf("LastConnected() error = %v", err)
	}
	if got == nil || got.Name != "a" {
		t.Errorf("LastConnected() = %+v, want credential a", got)
	}
	if got != nil && got.LastConnected == nil {
		t.Error("LastConnected().LastConnected is nil after touch")
	}
}

func TestListCreds(t *testing.T) {
	s := openStore(t)
	for _, name := range []string{"one", "two"} {
		if _, err := s.InsertCred(cred(name)); err != nil {
			t.Fatalf("InsertCred(%s) error = %v", name, err)
		}
	}

	list, err := s.ListCreds()
	if err != nil {
		t.Fatalf("ListCreds() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ListCreds() has %d entries, want 2", len(list))
	}
	if list[0].Name != "one" || list[1].Name != "two" {
		t.Errorf("ListCreds() order = [%s, %s], want insertion order", list[0].Name, list[1].Name)
	}
	if list[0].Host != "localhost" || list[0].Dialect != "mysql" {
		t.Errorf("ListCreds()[0] = %+v, want full public fields", list[0])
	}
}

func TestDeleteCredCascades(t *testing.T) {
	s := openStore(t)
	id, err := s.InsertCred(cred("shop"))
	if err != nil {
		t.Fatalf("InsertCred() error = %v", err)
	}

	spec := &populate.TableSpec{
		DBID:        &id,
		Name:        "users",
		PageSize:    100,
		NoOfEntries: 10,
		Columns:     []populate.ColumnSpec{{Name: "email", Generator: strPtr("Email"), Type: generator.KindFaker}},
	}
	if err := s.SaveSpec(spec); err != nil {
		t.Fatalf("SaveSpec() error = %v", err)
	}

	if err := s.DeleteCred("shop", "localhost", "3306", "root"); err != nil {
		t.Fatalf("DeleteCred() error = %v", err)
	}
	if got, err := s.FindCred("shop", "localhost", "3306", "root", "mysql"); err != nil || got != nil {
		t.Errorf("FindCred() after delete = (%v, %v), want (nil, nil)", got, err)
	}
	if got, err := s.GetSpec(id, "users"); err != nil || got != nil {
		t.Errorf("GetSpec() after delete = (%v, %v), want the cascade to remove it", got, err)
	}
}

func TestSpecRoundTrip(t *testing.T) {
	s := openStore(t)
	id, err := s.InsertCred(cred("shop"))
	if err != nil {
		t.Fatalf("InsertCred() error = %v", err)
	}

	spec := &populate.TableSpec{
		DBID:        &id,
		Name:        "users",
		PageSize:    50,
		NoOfEntries: 200,
		Columns: []populate.ColumnSpec{
			{Name: "id", Type: generator.KindAutoInc},
			{Name: "email", Generator: strPtr("Email"), Type: generator.KindFaker},
			{Name: "bio", Generator: strPtr("{{.columns.email}}"), Type: generator.KindScript, Order: 3},
		},
	}
	if err := s.SaveSpec(spec); err != nil {
		t.Fatalf("SaveSpec() error = %v", err)
	}

	got, err := s.GetSpec(id, "users")
	if err != nil {
		t.Fatalf("GetSpec() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetSpec() = nil, want the saved spec")
	}
	if got.PageSize != 50 || got.NoOfEntries != 200 {
		t.Errorf("GetSpec() = {page_size %d, no_of_entries %d}, want {50, 200}", got.PageSize, got.NoOfEntries)
	}
	if len(got.Columns) != 3 {
		t.Fatalf("GetSpec() has %d columns, want 3", len(got.Columns))
	}
	if got.Columns[0].Name != "id" || got.Columns[0].Generator != nil {
		t.Errorf("column 0 = %+v, want the generator-less id column first", got.Columns[0])
	}
	if got.Columns[2].Order != 3 || got.Columns[2].Type != generator.KindScript {
		t.Errorf("column 2 = %+v, want the ordered script column", got.Columns[2])
	}

	// A re-save replaces the column set wholesale.
	spec.Columns = spec.Columns[:1]
	spec.NoOfEntries = 5
	if err := s.SaveSpec(spec); err != nil {
		t.Fatalf("SaveSpec() again error = %v", err)
	}
	got, err = s.GetSpec(id, "users")
	if err != nil {
		t.Fatalf("GetSpec() error = %v", err)
	}
	if len(got.Columns) != 1 || got.NoOfEntries != 5 {
		t.Errorf("GetSpec() after re-save = %d columns, %d entries, want 1 and 5",
			len(got.Columns), got.NoOfEntries)
	}
}

func TestGetSpecMissing(t *testing.T) {
	s := openStore(t)
	got, err := s.GetSpec(99, "nope")
	if err != nil {
		t.Fatalf("GetSpec() error = %v", err)
	}
	if got != nil {
		t.Errorf("GetSpec() = %+v, want nil", got)
	}
}

func TestSaveSpecWithoutDBID(t *testing.T) {
	s := openStore(t)
	err := s.SaveSpec(&populate.TableSpec{Name: "users"})
	if err == nil || err.Error() != "Database not initialized with a valid ID." {
		t.Errorf("SaveSpec() error = %v, want the invalid-ID message", err)
	}
}

func TestUsageLedger(t *testing.T) {
	s := openStore(t)
	one, err := s.InsertCred(cred("one"))
	if err != nil {
		t.Fatalf("InsertCred() error = %v", err)
	}
	two, err := s.InsertCred(cred("two"))
	if err != nil {
		t.Fatalf("InsertCred() error = %v", err)
	}

	if err := s.AddRows(one, "users", 10); err != nil {
		t.Fatalf("AddRows() error = %v", err)
	}
	if err := s.AddRows(one, "users", 5); err != nil {
		t.Fatalf("AddRows() error = %v", err)
	}
	if err := s.AddRows(one, "orders", 3); err != nil {
		t.Fatalf("AddRows() error = %v", err)
	}
	if err := s.AddRows(two, "users", 7); err != nil {
		t.Fatalf("AddRows() error = %v", err)
	}

	usage, err := s.Rows(one)
	if err != nil {
		t.Fatalf("Rows() error = %v", err)
	}
	if usage["users"] != 15 || usage["orders"] != 3 {
		t.Errorf("first ledger = %v, want users 15, orders 3", usage)
	}

	if err := s.Reset(one); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	usage, err = s.Rows(one)
	if err != nil {
		t.Fatalf("Rows() error = %v", err)
	}
	if len(usage) != 0 {
		t.Errorf("ledger after reset = %v, want empty", usage)
	}
	usage, err = s.Rows(two)
	if err != nil {
		t.Fatalf("Rows() error = %v", err)
	}
	if usage["users"] != 7 {
		t.Errorf("second ledger = %v, want users 7 untouched", usage)
	}

	if err := s.ResetAll(); err != nil {
		t.Fatalf("ResetAll() error = %v", err)
	}
	usage, err = s.Rows(two)
	if err != nil {
		t.Fatalf("Rows() error = %v", err)
	}
	if len(usage) != 0 {
		t.Errorf("second ledger after ResetAll = %v, want empty", usage)
	}
}

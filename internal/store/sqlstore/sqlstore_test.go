// internal/store/sqlstore/sqlstore_test.go
//
// Unit-tests for the MySQL-backed document store using sqlmock.
//
// Run: go test ./internal/store/sqlstore -v

package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/yanizio/recordapi/internal/store"
)

var companyDesc = &store.Descriptor{
	Collection:       "company",
	SearchableFields: []string{"name"},
	ProtectedFields:  []string{"api_secret"},
	UniqueFields:     []string{"name"},
}

func newMock(t *testing.T) (*Collection, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	col := New(sqlx.NewDb(db, "sqlmock")).Collection(companyDesc)
	return col, mock, func() { db.Close() }
}

const fetchOneQuery = `SELECT doc FROM document WHERE id = ? AND collection = ? LIMIT 1`

func TestFindByID_MissMapsToErrNoDocument(t *testing.T) {
	col, mock, done := newMock(t)
	defer done()

	mock.ExpectQuery(regexp.QuoteMeta(fetchOneQuery)).
		WithArgs("missing", "company").
		WillReturnError(sql.ErrNoRows)

	_, err := col.FindByID(context.Background(), "missing", store.Projection{}, nil)
	if !errors.Is(err, store.ErrNoDocument) {
		t.Fatalf("err = %v, want ErrNoDocument", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestFindByID_DecodesAndProjects(t *testing.T) {
	col, mock, done := newMock(t)
	defer done()

	doc := `{"id":"abc","name":"Acme","api_secret":"s3cret"}`
	mock.ExpectQuery(regexp.QuoteMeta(fetchOneQuery)).
		WithArgs("abc", "company").
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).AddRow([]byte(doc)))

	got, err := col.FindByID(context.Background(), "abc",
		store.Projection{Mode: store.ProjectExclude, Fields: companyDesc.ProtectedFields}, nil)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got["name"] != "Acme" {
		t.Fatalf("doc = %#v", got)
	}
	if _, leak := got["api_secret"]; leak {
		t.Fatalf("projection failed: %#v", got)
	}
}

func TestInsert_ProbeDetectsDuplicate(t *testing.T) {
	col, mock, done := newMock(t)
	defer done()

	probe := `SELECT id FROM document WHERE collection = ? AND JSON_UNQUOTE(JSON_EXTRACT(doc, ?)) = ? LIMIT 1`
	mock.ExpectQuery(regexp.QuoteMeta(probe)).
		WithArgs("company", "$.name", "Acme").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("other-id"))

	_, err := col.Insert(context.Background(), store.Record{"name": "Acme"})

	var dup *store.DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("err = %v, want DuplicateError", err)
	}
	if len(dup.Fields) != 1 || dup.Fields[0] != "name" {
		t.Fatalf("conflicting fields = %v", dup.Fields)
	}
}

func TestInsert_WritesRow(t *testing.T) {
	col, mock, done := newMock(t)
	defer done()

	probe := `SELECT id FROM document WHERE collection = ? AND JSON_UNQUOTE(JSON_EXTRACT(doc, ?)) = ? LIMIT 1`
	mock.ExpectQuery(regexp.QuoteMeta(probe)).
		WithArgs("company", "$.name", "Acme").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta(
		`INSERT INTO document (id, collection, doc, created_at, updated_at) VALUES (?, ?, ?, NOW(6), NOW(6))`,
	)).WillReturnResult(sqlmock.NewResult(0, 1))

	rec, err := col.Insert(context.Background(), store.Record{"name": "Acme"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if rec[store.FieldID] == nil || rec[store.FieldCreatedAt] == nil {
		t.Fatalf("identity or timestamps missing: %#v", rec)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

// A concurrent writer can slip between the probe and the INSERT.  The
// driver's duplicate-entry error is re-probed so the conflict names the
// offending field instead of blaming every unique field.
func TestInsert_RaceDuplicateNamesOffendingField(t *testing.T) {
	col, mock, done := newMock(t)
	defer done()

	probe := `SELECT id FROM document WHERE collection = ? AND JSON_UNQUOTE(JSON_EXTRACT(doc, ?)) = ? LIMIT 1`
	mock.ExpectQuery(regexp.QuoteMeta(probe)).
		WithArgs("company", "$.name", "Acme").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta(
		`INSERT INTO document (id, collection, doc, created_at, updated_at) VALUES (?, ?, ?, NOW(6), NOW(6))`,
	)).WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectQuery(regexp.QuoteMeta(probe)).
		WithArgs("company", "$.name", "Acme").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("winner-id"))

	_, err := col.Insert(context.Background(), store.Record{"name": "Acme"})

	var dup *store.DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("err = %v, want DuplicateError", err)
	}
	if len(dup.Fields) != 1 || dup.Fields[0] != "name" {
		t.Fatalf("conflicting fields = %v, want [name]", dup.Fields)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestFind_FiltersFetchedDocuments(t *testing.T) {
	col, mock, done := newMock(t)
	defer done()

	rows := sqlmock.NewRows([]string{"doc"}).
		AddRow([]byte(`{"id":"1","name":"Acme"}`)).
		AddRow([]byte(`{"id":"2","name":"Beta"}`))
	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT doc FROM document WHERE collection = ? ORDER BY id`,
	)).WithArgs("company").WillReturnRows(rows)

	got, err := col.Find(context.Background(), &store.QueryPlan{
		Filter: store.Contains{Field: "name", Term: "acm"},
	})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(got) != 1 || got[0]["name"] != "Acme" {
		t.Fatalf("page = %#v, want the Acme record only", got)
	}
}

func TestFindByIDAndDelete_RemovesRow(t *testing.T) {
	col, mock, done := newMock(t)
	defer done()

	mock.ExpectQuery(regexp.QuoteMeta(fetchOneQuery)).
		WithArgs("abc", "company").
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).AddRow([]byte(`{"id":"abc","name":"Acme"}`)))
	mock.ExpectExec(regexp.QuoteMeta(
		`DELETE FROM document WHERE id = ? AND collection = ?`,
	)).WithArgs("abc", "company").WillReturnResult(sqlmock.NewResult(0, 1))

	rec, err := col.FindByIDAndDelete(context.Background(), "abc")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if rec["name"] != "Acme" {
		t.Fatalf("deleted record = %#v", rec)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

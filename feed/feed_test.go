package feed

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/npl-provision/conventional"
	"github.com/warp/npl-provision/provision"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func hp(acct string, note, product int, balance string) LoanRecord {
	return LoanRecord{
		AccountNo: acct, NoteNo: note, Branch: 7, Product: product,
		Balance: dec(balance), PaidIndicator: "M",
	}
}

// =============================================================================
// PREPARATION
// =============================================================================

func TestPrepare_FiltersAndJoins(t *testing.T) {
	p := conventional.Portfolio()

	// GIVEN: HP rows with a zero balance, a foreign product and duplicate arrears
	loans := []LoanRecord{
		hp("0000000003", 1, 700, "1000"),
		hp("0000000001", 1, 705, "500"),
		hp("0000000002", 1, 700, "0"),
		hp("0000000004", 1, 128, "900"),
		hp("0000000001", 2, 380, "250"),
	}
	arrears := []ArrearsRecord{
		{AccountNo: "0000000001", NoteNo: 1, Facility: "34331", DaysInArrears: 40},
		{AccountNo: "0000000001", NoteNo: 1, Facility: "34332", DaysInArrears: 95},
		{AccountNo: "0000000001", NoteNo: 1, Facility: "34331", DaysInArrears: 10},
		{AccountNo: "0000000003", NoteNo: 1, Facility: "99999", DaysInArrears: 300},
	}

	// WHEN: Preparing the conventional population
	accts, stats := Prepare(p, loans, arrears)

	// THEN: Only positive balances of the book's products remain, sorted by key
	require.Len(t, accts, 3)
	assert.Equal(t, provision.AccountKey{AccountNo: "0000000001", NoteNo: 1}, accts[0].Key())
	assert.Equal(t, provision.AccountKey{AccountNo: "0000000001", NoteNo: 2}, accts[1].Key())
	assert.Equal(t, provision.AccountKey{AccountNo: "0000000003", NoteNo: 1}, accts[2].Key())

	// AND: Arrears are deduped keeping the maximum days
	require.NotNil(t, accts[0].DaysInArrears)
	assert.Equal(t, 95, *accts[0].DaysInArrears)

	// AND: Foreign facilities are ignored, leaving no arrears record
	assert.Nil(t, accts[1].DaysInArrears)
	assert.Nil(t, accts[2].DaysInArrears)

	assert.Equal(t, 5, stats.Loans)
	assert.Equal(t, 1, stats.NonPositive)
	assert.Equal(t, 1, stats.OtherProduct)
	assert.Equal(t, 3, stats.Kept())
	assert.Equal(t, 1, stats.OtherFacility)
	assert.Equal(t, 2, stats.DuplicateArrears)
	assert.Equal(t, 2, stats.NoArrears)
}

func TestPrepare_NoArrearsNeverClassifiesByDays(t *testing.T) {
	accts, _ := Prepare(conventional.Portfolio(), []LoanRecord{hp("A", 1, 700, "10")}, nil)
	require.Len(t, accts, 1)
	assert.Equal(t, provision.Unclassified, provision.Classify(accts[0]))
}

// =============================================================================
// CSV
// =============================================================================

func TestReadLoansCSV(t *testing.T) {
	doc := `ACCTNO,NOTENO,BRANCH,PRODUCT,BALANCE,BORSTAT,PAIDIND,USER5,AANO
0000000001,1,7,700,1234.56,,M,,AA00000000001
0000000002,3,12,380,99.10,R,M,N,
`
	loans, err := ReadLoansCSV("HP01425.csv", strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, loans, 2)
	assert.Equal(t, "0000000001", loans[0].AccountNo)
	assert.Equal(t, "1234.56", loans[0].Balance.String())
	assert.Equal(t, "AA00000000001", loans[0].ExternalRef)
	assert.Equal(t, 12, loans[1].Branch)
	assert.Equal(t, "R", loans[1].BorrowerStatus)
	assert.Equal(t, "N", loans[1].User5)
}

func TestReadCSV_MalformedIsDataAnomaly(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		msg  string
	}{
		{"missing column", "ACCTNO,NOTENO\nA,1\n", "missing column BRANCH"},
		{"bad number", "ACCTNO,NOTENO,BRANCH,PRODUCT,BALANCE,PAIDIND\nA,x,1,700,1,M\n", "line 2"},
		{"bad amount", "ACCTNO,NOTENO,BRANCH,PRODUCT,BALANCE,PAIDIND\nA,1,1,700,1.2.3,M\n", "BALANCE"},
		{"empty", "", "missing header"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadLoansCSV("loans.csv", strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.True(t, provision.IsDataAnomaly(err))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestReadArrearsCSV_AcceptsSourceColumnNames(t *testing.T) {
	doc := "ACCTNUM,NOTENO,FACILITY,DAYSARR\nA,1,34331,45\n"
	arrears, err := ReadArrearsCSV("arrears.csv", strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, arrears, 1)
	assert.Equal(t, ArrearsRecord{AccountNo: "A", NoteNo: 1, Facility: "34331", DaysInArrears: 45}, arrears[0])
}

func TestReadRecRate(t *testing.T) {
	rate, err := ReadRecRate("RECRATE0125.txt", strings.NewReader("RECRATE\n  38.75 \n"))
	require.NoError(t, err)
	assert.Equal(t, "38.75", rate.String())

	_, err = ReadRecRate("r", strings.NewReader("120\n"))
	assert.True(t, provision.IsDataAnomaly(err))
	_, err = ReadRecRate("r", strings.NewReader("\n"))
	assert.True(t, provision.IsDataAnomaly(err))
}

func TestReadProvisionsCSV(t *testing.T) {
	doc := "ACCTNO,NOTENO,BRANCH,CATEGORY,BALANCE,CARATE,CAP,AANO\nA,1,2,1-2 MTHS,10000,5.331592,533.16,REF\n"
	provs, err := ReadProvisionsCSV("cap.csv", strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, provs, 1)
	assert.Equal(t, provision.OneToTwo, provs[0].Category)
	assert.Equal(t, "533.16", provs[0].Cap.String())

	_, err = ReadProvisionsCSV("cap.csv", strings.NewReader("ACCTNO,NOTENO,BRANCH,CATEGORY,CAP\nA,1,2,LOST,1\n"))
	assert.True(t, provision.IsDataAnomaly(err))
}

// =============================================================================
// DIRECTORY
// =============================================================================

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestDir_LoadCSV(t *testing.T) {
	root := t.TempDir()
	rd := provision.NewReportDate(time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC))

	writeFile(t, root, "HP03425.csv", "ACCTNO,NOTENO,BRANCH,PRODUCT,BALANCE,BORSTAT,PAIDIND,USER5,AANO\nA,1,7,700,100,,M,,\nB,1,7,700,200,,M,,\n")
	writeFile(t, root, "CREDMSUBAC0325.csv", "ACCTNO,NOTENO,FACILITY,DAYARR\nA,1,34331,45\n")
	writeFile(t, root, "RECRATE0325.txt", "40\n")
	writeFile(t, root, "WOFF0325.csv", "ACCTNO,NOTENO,WRIOFF_BAL\nA,1,25\n")
	writeFile(t, root, "conventional-CAP0225.csv", "ACCTNO,NOTENO,BRANCH,CATEGORY,CAP\nA,1,7,CURRENT,3.12\n")

	log, _ := test.NewNullLogger()
	d, err := NewDir(root, FormatCSV, log)
	require.NoError(t, err)

	b, err := d.Load(context.Background(), conventional.Portfolio(), rd)
	require.NoError(t, err)

	require.Len(t, b.Accounts, 2)
	require.NotNil(t, b.RecRate)
	assert.Equal(t, "40", b.RecRate.String())
	assert.Len(t, b.WriteOffs, 1)
	assert.Len(t, b.Opening, 1)
	assert.Len(t, b.Files, 5)

	in := b.Input(conventional.Name, rd.Period())
	assert.Equal(t, "2025-03", in.Period.String())
	assert.Len(t, in.Accounts, 2)
}

func TestDir_MissingRequiredFile(t *testing.T) {
	log, _ := test.NewNullLogger()
	d, err := NewDir(t.TempDir(), FormatAuto, log)
	require.NoError(t, err)

	_, err = d.Load(context.Background(), conventional.Portfolio(), provision.NewReportDate(time.Now()))
	assert.ErrorIs(t, err, ErrFeedMissing)

	_, err = NewDir("x", "xlsx", log)
	assert.Error(t, err)
}

func TestDir_LoadParquet(t *testing.T) {
	root := t.TempDir()
	rd := provision.NewReportDate(time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC))

	loans := []LoanRecord{hp("A", 1, 700, "100.25"), hp("B", 2, 720, "300")}
	loans[1].ExternalRef = "REF-B"
	require.NoError(t, WriteLoansParquet(filepath.Join(root, "HP01225.parquet"), loans))
	require.NoError(t, WriteArrearsParquet(filepath.Join(root, "CREDMSUBAC0125.parquet"), []ArrearsRecord{
		{AccountNo: "B", NoteNo: 2, Facility: "34332", DaysInArrears: 200},
	}))

	log, _ := test.NewNullLogger()
	d, err := NewDir(root, FormatAuto, log)
	require.NoError(t, err)

	b, err := d.Load(context.Background(), conventional.Portfolio(), rd)
	require.NoError(t, err)
	require.Len(t, b.Accounts, 2)
	assert.Equal(t, "100.25", b.Accounts[0].Balance.String())
	assert.Equal(t, "REF-B", b.Accounts[1].ExternalRef)
	require.NotNil(t, b.Accounts[1].DaysInArrears)
	assert.Equal(t, 200, *b.Accounts[1].DaysInArrears)
	assert.Nil(t, b.RecRate)
	assert.Nil(t, b.Opening)
}

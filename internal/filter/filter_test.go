package filter

import (
	"errors"
	"reflect"
	"testing"

	"bucketetl/internal/dataset"
	"bucketetl/internal/etlerr"
	"bucketetl/internal/schema"
)

var loanCols = schema.MustNew(
	schema.Column{Name: "id", Type: schema.Integer},
	schema.Column{Name: "loan_status", Type: schema.String},
	schema.Column{Name: "purpose", Type: schema.String},
	schema.Column{Name: "last_fico_range_low", Type: schema.Integer},
)

type loanRow struct {
	status, purpose string
	fico            int64
	nullFico        bool
}

func build(t *testing.T, rows []loanRow) *dataset.Dataset {
	t.Helper()
	d := dataset.New("sample.csv", loanCols)
	for i, r := range rows {
		fico := dataset.Int(r.fico)
		if r.nullFico {
			fico = dataset.Null(schema.Integer)
		}
		d.MustAppend(i+2, dataset.Int(int64(i+1)), dataset.Str(r.status), dataset.Str(r.purpose), fico)
	}
	return d
}

func TestDefault_KeepsExactlyQualifyingRowsInOrder(t *testing.T) {
	t.Parallel()

	rows := []loanRow{
		{"Fully Paid", "debt_consolidation", 740, false},     // 1 keep
		{"Charged Off", "credit_card", 760, false},           // 2 drop: status
		{"Fully Paid", "credit_card", 700, false},            // 3 keep: boundary
		{"Current", "car", 712, false},                       // 4 keep
		{"Fully Paid", "other", 790, false},                  // 5 drop: purpose
		{"Fully Paid", "home_improvement", 699, false},       // 6 drop: fico
		{"Current", "small_business", 705, false},            // 7 keep
		{"Fully Paid", "wedding", 0, true},                   // 8 drop: NULL fico
		{"Late (31-120 days)", "major_purchase", 800, false}, // 9 keep
		{"Fully Paid", "vacation", 721, false},               // 10 keep
		{"Current", "medical", 733, false},                   // 11 keep
		{"Fully Paid", "moving", 745, false},                 // 12 keep
		{"In Grace Period", "house", 701, false},             // 13 keep
		{"Fully Paid", "educational", 820, false},            // 14 keep
	}
	d := build(t, rows)

	out, err := Default().Filter(d)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	var got []int64
	for _, r := range out.Rows() {
		c, _ := r.Get("id")
		v, _ := c.Int64()
		got = append(got, v)
	}
	want := []int64{1, 3, 4, 7, 9, 10, 11, 12, 13, 14}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ids = %v, want %v", got, want)
	}
	if out.Len() != 10 {
		t.Fatalf("rows = %d, want 10", out.Len())
	}
}

func TestFilter_MissingColumnIsFilterError(t *testing.T) {
	t.Parallel()

	d := dataset.New("x.csv", schema.MustNew(schema.Column{Name: "id", Type: schema.Integer}))
	d.MustAppend(2, dataset.Int(1))

	_, err := Default().Filter(d)
	if !errors.Is(err, etlerr.FilterError) {
		t.Fatalf("err = %v, want FilterError", err)
	}
	if d.Len() != 1 {
		t.Fatalf("rows removed despite binding failure")
	}
}

func TestCompare_Ops(t *testing.T) {
	t.Parallel()

	rows := []loanRow{
		{"Fully Paid", "car", 650, false},
		{"Current", "house", 700, false},
		{"Charged Off", "car", 750, false},
	}
	cases := []struct {
		name  string
		field string
		op    Op
		value any
		want  int
	}{
		{"eq", "purpose", Eq, "car", 2},
		{"gt", "last_fico_range_low", Gt, 700, 1},
		{"lt string literal", "last_fico_range_low", Lt, "700", 1},
		{"le float", "last_fico_range_low", Le, 700.0, 2},
		{"in", "loan_status", In, []any{"Current", "Fully Paid"}, 2},
		{"not_in", "loan_status", NotIn, []string{"Charged Off"}, 2},
		{"symbolic", "last_fico_range_low", ">=", 700, 2},
		{"not_null", "purpose", NotNull, nil, 3},
	}
	for _, tc := range cases {
		c, err := NewCompare(tc.field, tc.op, tc.value)
		if err != nil {
			t.Fatalf("%s: NewCompare: %v", tc.name, err)
		}
		out, err := Conjunction{c}.Filter(build(t, rows))
		if err != nil {
			t.Fatalf("%s: Filter: %v", tc.name, err)
		}
		if got := out.Len(); got != tc.want {
			t.Fatalf("%s: rows = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestCompare_NullNeverMatches(t *testing.T) {
	t.Parallel()

	d := build(t, []loanRow{{"Current", "car", 0, true}})
	out, err := Conjunction{MustCompare("last_fico_range_low", Ne, 1)}.Filter(d)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("NULL cell passed a ne comparison")
	}
}

func TestCompare_BindErrors(t *testing.T) {
	t.Parallel()

	bad := []Compare{
		{Field: "last_fico_range_low", Op: Ge, Value: "high"},
		{Field: "purpose", Op: Eq, Value: []int{1}},
	}
	for _, c := range bad {
		if _, err := c.Bind(loanCols); err == nil {
			t.Fatalf("%v: want bind error", c)
		}
	}
	if _, err := NewCompare("purpose", In, "car"); err == nil {
		t.Fatalf("in with scalar should fail")
	}
	if _, err := NewCompare("purpose", "like", "car"); err == nil {
		t.Fatalf("unknown op should fail")
	}
}

func TestFunc_ComposesWithConjunction(t *testing.T) {
	t.Parallel()

	evenIDs := Func("even id", func(r dataset.Row) bool {
		c, _ := r.Get("id")
		v, _ := c.Int64()
		return v%2 == 0
	})
	d := build(t, []loanRow{{"Current", "car", 710, false}, {"Current", "car", 720, false}, {"Current", "car", 730, false}})
	out, err := append(Default(), evenIDs).Filter(d)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if out.Len() != 1 || out.Row(0).Line != 3 {
		t.Fatalf("got %d rows", out.Len())
	}
}

func TestCompare_LiteralsUseCellOptions(t *testing.T) {
	t.Parallel()

	s := schema.MustNew(
		schema.Column{Name: "issue_d", Type: schema.Date},
		schema.Column{Name: "verified", Type: schema.Boolean},
	)
	d := dataset.New("x.csv", s)
	for i, row := range [][2]string{{"2015/11", "Verified"}, {"2015/12", "Not Verified"}, {"2016/01", "Verified"}} {
		opt := dataset.ParseOptions{DateLayouts: []string{"2006/01"}, Truthy: []string{"Verified"}, Falsy: []string{"Not Verified"}}
		issued, err := dataset.Parse(row[0], schema.Date, opt)
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		verified, err := dataset.Parse(row[1], schema.Boolean, opt)
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		d.MustAppend(i+2, issued, verified)
	}
	cells := dataset.ParseOptions{DateLayouts: []string{"2006/01"}, Truthy: []string{"Verified"}}

	since := MustCompare("issue_d", Ge, "2015/12")
	verified := MustCompare("verified", Eq, "verified")
	for _, c := range []Compare{since, verified} {
		if _, err := c.Bind(s); err == nil {
			t.Fatalf("%v bound without the configured cell options", c)
		}
	}
	since.Cells = cells
	verified.Cells = cells

	out, err := Conjunction{since, verified}.Filter(d)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if out.Len() != 1 || out.Row(0).Line != 4 {
		t.Fatalf("rows = %d, want only 2016/01", out.Len())
	}
}

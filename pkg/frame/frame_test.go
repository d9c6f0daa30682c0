package frame

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

const budgetCSV = `Fiscal Year,Amount,Label,Active
2020,100,alpha,True
2021,,beta,False
2022,250.5,gamma,True
`

func TestReadCSV(t *testing.T) {
	f, err := ReadCSV(strings.NewReader(budgetCSV))
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}

	if f.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", f.Len())
	}
	if diff := cmp.Diff([]string{"Fiscal Year", "Amount", "Label", "Active"}, f.Columns()); diff != "" {
		t.Errorf("Columns() mismatch (-want +got):\n%s", diff)
	}

	tests := []struct {
		column string
		dtype  DType
		values []any
	}{
		{"Fiscal Year", Int64, []any{int64(2020), int64(2021), int64(2022)}},
		{"Amount", Float64, []any{100.0, nil, 250.5}},
		{"Label", Object, []any{"alpha", "beta", "gamma"}},
		{"Active", Bool, []any{true, false, true}},
	}
	for _, tt := range tests {
		t.Run(tt.column, func(t *testing.T) {
			c, ok := f.Column(tt.column)
			if !ok {
				t.Fatalf("column %q missing", tt.column)
			}
			if c.DType != tt.dtype {
				t.Errorf("DType = %s, want %s", c.DType, tt.dtype)
			}
			if diff := cmp.Diff(tt.values, c.Values); diff != "" {
				t.Errorf("values mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadCSV_Edges(t *testing.T) {
	t.Run("empty document", func(t *testing.T) {
		if _, err := ReadCSV(strings.NewReader("")); err != ErrEmptyCSV {
			t.Errorf("error = %v, want ErrEmptyCSV", err)
		}
	})

	t.Run("duplicate and blank headers", func(t *testing.T) {
		f, err := ReadCSV(strings.NewReader("A,A,\n1,2,3\n"))
		if err != nil {
			t.Fatalf("ReadCSV() error = %v", err)
		}
		if diff := cmp.Diff([]string{"A", "A.1", "Unnamed: 2"}, f.Columns()); diff != "" {
			t.Errorf("Columns() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("byte order mark", func(t *testing.T) {
		f, err := ReadCSV(strings.NewReader("\ufeffYear,Budget\n2024,24.9\n"))
		if err != nil {
			t.Fatalf("ReadCSV() error = %v", err)
		}
		if diff := cmp.Diff([]string{"Year", "Budget"}, f.Columns()); diff != "" {
			t.Errorf("Columns() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("ragged rows and blank lines", func(t *testing.T) {
		f, err := ReadCSV(strings.NewReader("Year,Note\n1976 TQ\n\n1977,ok\n"))
		if err != nil {
			t.Fatalf("ReadCSV() error = %v", err)
		}
		if f.Len() != 2 {
			t.Fatalf("Len() = %d, want 2", f.Len())
		}
		if got := f.Value("Year", 0); got != "1976 TQ" {
			t.Errorf("Year[0] = %v, want 1976 TQ", got)
		}
		if got := f.Value("Note", 0); got != nil {
			t.Errorf("Note[0] = %v, want nil", got)
		}
	})
}

func TestFrame_Operations(t *testing.T) {
	f, err := FromColumns([]string{"Year", "Amount", "Extra"}, map[string][]any{
		"Year":   {2020, 2021, 2022},
		"Amount": {1.5, 2.5, 3.5},
		"Extra":  {"a", "b", "c"},
	})
	if err != nil {
		t.Fatalf("FromColumns() error = %v", err)
	}

	missing := f.Select([]string{"Amount", "Year", "Nope"})
	if diff := cmp.Diff([]string{"Nope"}, missing); diff != "" {
		t.Errorf("Select() missing mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Amount", "Year"}, f.Columns()); diff != "" {
		t.Errorf("Columns() after Select mismatch (-want +got):\n%s", diff)
	}

	f.Rename(map[string]string{"Year": "Fiscal Year", "Absent": "X"})
	if !f.Has("Fiscal Year") || f.Has("Year") {
		t.Errorf("Rename() failed: %v", f.Columns())
	}

	clone := f.Clone()
	f.FilterRows(func(row int) bool { return row != 1 })
	if f.Len() != 2 || clone.Len() != 3 {
		t.Errorf("FilterRows() lens = %d/%d, want 2/3", f.Len(), clone.Len())
	}
	if got := f.Value("Amount", 1); got != 3.5 {
		t.Errorf("Amount[1] = %v, want 3.5", got)
	}

	if err := f.SetColumn("Short", []any{1}); err == nil {
		t.Error("expected length mismatch error")
	}

	vals, ok := f.Get("Fiscal Year")
	if !ok {
		t.Fatal("Get() missing column")
	}
	if diff := cmp.Diff([]any{int64(2020), int64(2022)}, vals); diff != "" {
		t.Errorf("Get() mismatch (-want +got):\n%s", diff)
	}

	f.Drop("Amount")
	if f.Has("Amount") || len(f.Columns()) != 1 {
		t.Errorf("Drop() failed: %v", f.Columns())
	}
}

func TestNormalize(t *testing.T) {
	jan1 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		in     []any
		dtype  DType
		values []any
	}{
		{"ints", []any{1, int32(2)}, Int64, []any{int64(1), int64(2)}},
		{"ints with missing", []any{1, nil}, Float64, []any{1.0, nil}},
		{"mixed numbers", []any{1, 2.5}, Float64, []any{1.0, 2.5}},
		{"nan is missing", []any{math.NaN(), 1.0}, Float64, []any{nil, 1.0}},
		{"times", []any{jan1, nil}, Datetime, []any{jan1, nil}},
		{"strings", []any{"a", 1}, Object, []any{"a", int64(1)}},
		{"all missing", []any{nil}, Float64, []any{nil}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dtype, got := Normalize(tt.in)
			if dtype != tt.dtype {
				t.Errorf("dtype = %s, want %s", dtype, tt.dtype)
			}
			if diff := cmp.Diff(tt.values, got); diff != "" {
				t.Errorf("values mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFrame_MarshalJSON(t *testing.T) {
	f := FromRecords([]string{"a", "b"}, []map[string]any{
		{"a": 1, "b": "x"},
		{"a": 2},
	})
	data, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `[{"a":1,"b":"x"},{"a":2,"b":null}]`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
}

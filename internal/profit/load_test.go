package profit

import (
	"errors"
	"strings"
	"testing"

	"pnlboard/internal/domain"
)

func TestLoadKeepsValidLinesInOrder(t *testing.T) {
	input := strings.Join([]string{
		`{"date":"2025-05-01","hour":0,"profit":100}`,
		``,
		`not json`,
		`{"date":"2025-05-01","hour":"1","profit":5}`,
		`{"date":20250501,"hour":1,"profit":5}`,
		`{"date":"2025-05-01","hour":1.5,"profit":5}`,
		`{"date":"2025-05-01","hour":2}`,
		`{"date":"2025-05-01","hour":2,"profit":null}`,
		`[1,2,3]`,
		`null`,
		`{"date":"2025-05-01","hour":3,"profit":-42.5,"extra":true}`,
		`   `,
		`{"date":"2025-04-30","hour":23,"profit":7}`,
	}, "\r\n")

	recs, stats, err := Load(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := []domain.ProfitRecord{
		{Date: "2025-05-01", Hour: 0, Profit: 100},
		{Date: "2025-05-01", Hour: 3, Profit: -42.5},
		{Date: "2025-04-30", Hour: 23, Profit: 7},
	}
	if len(recs) != len(want) {
		t.Fatalf("got %d records, want %d: %+v", len(recs), len(want), recs)
	}
	for i := range want {
		if recs[i] != want[i] {
			t.Errorf("recs[%d] = %+v, want %+v", i, recs[i], want[i])
		}
	}

	if stats.Lines != 11 || stats.Kept != 3 || stats.Skipped != 8 {
		t.Errorf("stats = %+v, want Lines=11 Kept=3 Skipped=8", stats)
	}
}

func TestLoadEmptyInput(t *testing.T) {
	for _, in := range []string{"", "\n\n", "\r\n  \r\n"} {
		recs, stats, err := Load(strings.NewReader(in))
		if err != nil {
			t.Fatalf("Load(%q): %v", in, err)
		}
		if recs == nil || len(recs) != 0 {
			t.Errorf("Load(%q) = %v, want empty non-nil slice", in, recs)
		}
		if stats.Lines != 0 {
			t.Errorf("Load(%q) counted %d lines", in, stats.Lines)
		}
	}
}

func TestLoadLastLineWithoutNewline(t *testing.T) {
	recs := Parse("{\"date\":\"2025-05-01\",\"hour\":1,\"profit\":1}\n{\"date\":\"2025-05-01\",\"hour\":2,\"profit\":2}")
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[1].Hour != 2 {
		t.Errorf("recs[1].Hour = %d, want 2", recs[1].Hour)
	}
}

func TestLoadAcceptsNegativeAndExponentNumbers(t *testing.T) {
	recs := Parse(`{"date":"2025-05-01","hour":-1,"profit":1.5e2}`)
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if recs[0].Hour != -1 || recs[0].Profit != 150 {
		t.Errorf("record = %+v", recs[0])
	}
}

type failingReader struct{ sent bool }

func (f *failingReader) Read(p []byte) (int, error) {
	if !f.sent {
		f.sent = true
		return copy(p, "{\"date\":\"2025-05-01\",\"hour\":1,\"profit\":1}\n"), nil
	}
	return 0, errors.New("connection reset")
}

func TestLoadReportsReadError(t *testing.T) {
	recs, _, err := Load(&failingReader{})
	if err == nil {
		t.Fatal("expected read error")
	}
	if len(recs) != 1 {
		t.Errorf("records before failure = %d, want 1", len(recs))
	}
}

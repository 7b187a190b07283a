package docstore

import "testing"

func TestParseCronExpr(t *testing.T) {
	cases := []struct {
		expr    string
		wantErr bool
	}{
		{"*/30 * * * * *", false}, // six fields, with seconds
		{"*/5 * * * *", false},    // five fields, standard
		{"@every 5m", false},
		{"@hourly", false},
		{"not a schedule", true},
		{"", true},
	}
	for _, tc := range cases {
		_, err := parseCronExpr(tc.expr, "UTC")
		if tc.wantErr && err == nil {
			t.Errorf("%q: expected error", tc.expr)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("%q: %v", tc.expr, err)
		}
	}
}

func TestParseCronExprTimezone(t *testing.T) {
	if _, err := parseCronExpr("0 9 * * *", "Asia/Almaty"); err != nil {
		t.Fatalf("timezone prefix rejected: %v", err)
	}
	if _, err := parseCronExpr("0 9 * * *", "Not/AZone"); err == nil {
		t.Error("bad timezone should fail")
	}
}

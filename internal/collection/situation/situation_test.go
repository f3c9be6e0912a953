package situation

import (
	"testing"
	"time"
)

var t0 = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func ts(t time.Time) *time.Time { return &t }

func TestDeriveFreshRecordIsOut(t *testing.T) {
	// 登録直後：チェックイン履歴なし → OUT
	s := Snapshot{CreatedAt: t0}
	if got := Derive(s, t0.Add(time.Minute)); got != Out {
		t.Errorf("expected OUT, got %s", got)
	}
}

func TestDeriveLostThreshold(t *testing.T) {
	// createdAt基準：47hはまだOUT、49hでLOST（仕様シナリオ1）
	s := Snapshot{CreatedAt: t0}
	if got := Derive(s, t0.Add(47*time.Hour)); got != Lost {
		if got != Out {
			t.Errorf("at 47h expected OUT, got %s", got)
		}
	} else {
		t.Error("at 47h must not be LOST yet")
	}
	if got := Derive(s, t0.Add(49*time.Hour)); got != Lost {
		t.Errorf("at 49h expected LOST, got %s", got)
	}
	// 境界ちょうど48hはLOST（>= 判定）
	if got := Derive(s, t0.Add(LostAfter)); got != Lost {
		t.Errorf("at exactly 48h expected LOST, got %s", got)
	}
}

func TestDeriveScannedAtResetsLostTimer(t *testing.T) {
	// 登録から3日経っていても、直近にスキャンしていればLOSTにならない
	s := Snapshot{
		CreatedAt: t0,
		ScannedAt: ts(t0.Add(71 * time.Hour)),
		CheckInAt: ts(t0.Add(time.Hour)),
	}
	if got := Derive(s, t0.Add(72*time.Hour)); got != Home {
		t.Errorf("expected HOME, got %s", got)
	}
}

func TestDeriveLostDominance(t *testing.T) {
	// LOSTはチェックイン/チェックアウトの値に関わらず優先される
	for _, in := range []*time.Time{nil, ts(t0), ts(t0.Add(time.Hour))} {
		for _, out := range []*time.Time{nil, ts(t0), ts(t0.Add(2 * time.Hour))} {
			s := Snapshot{CreatedAt: t0, CheckInAt: in, CheckedOutAt: out}
			if got := Derive(s, t0.Add(50*time.Hour)); got != Lost {
				t.Errorf("in=%v out=%v: expected LOST, got %s", in, out, got)
			}
		}
	}
}

func TestDeriveHomeOutComparison(t *testing.T) {
	// 仕様シナリオ2：checkedOutAt > checkInAt → OUT
	s := Snapshot{
		CreatedAt:    t0,
		CheckedOutAt: ts(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)),
		CheckInAt:    ts(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)),
		ScannedAt:    ts(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)),
	}
	now := time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC)
	if got := Derive(s, now); got != Out {
		t.Errorf("expected OUT, got %s", got)
	}

	// 逆転させればHOME
	s.CheckInAt = ts(time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC))
	if got := Derive(s, now); got != Home {
		t.Errorf("expected HOME, got %s", got)
	}
}

func TestDeriveTieBreakIsOut(t *testing.T) {
	// 完全同時刻はOUT
	same := ts(t0.Add(time.Hour))
	s := Snapshot{CreatedAt: t0, CheckInAt: same, CheckedOutAt: same, ScannedAt: same}
	if got := Derive(s, t0.Add(2*time.Hour)); got != Out {
		t.Errorf("expected OUT on tie, got %s", got)
	}
}

func TestDeriveCheckedOutOnlyIsOut(t *testing.T) {
	s := Snapshot{CreatedAt: t0, CheckedOutAt: ts(t0.Add(time.Hour)), ScannedAt: ts(t0.Add(time.Hour))}
	if got := Derive(s, t0.Add(2*time.Hour)); got != Out {
		t.Errorf("expected OUT, got %s", got)
	}
}

func TestDeriveCheckInOnlyIsHome(t *testing.T) {
	s := Snapshot{CreatedAt: t0, CheckInAt: ts(t0.Add(time.Hour)), ScannedAt: ts(t0.Add(time.Hour))}
	if got := Derive(s, t0.Add(2*time.Hour)); got != Home {
		t.Errorf("expected HOME, got %s", got)
	}
}

func TestDeriveSleepingOverlay(t *testing.T) {
	// IsSleepingはタイムスタンプ由来の結果を上書きする
	cases := []Snapshot{
		{CreatedAt: t0},                                                        // would be OUT
		{CreatedAt: t0, CheckInAt: ts(t0.Add(time.Hour))},                      // would be HOME
		{CreatedAt: t0, ScannedAt: ts(t0.Add(-72 * time.Hour))},                // would be LOST
		{CreatedAt: t0, CheckInAt: ts(t0), CheckedOutAt: ts(t0.Add(time.Hour))}, // would be OUT
	}
	for i, s := range cases {
		s.IsSleeping = true
		if got := Derive(s, t0.Add(time.Hour)); got != Sleeping {
			t.Errorf("case %d: expected SLEEPING, got %s", i, got)
		}
	}
}

func TestDeriveTotality(t *testing.T) {
	// 全組み合わせで必ず4値のどれかを返す（パニックしない）
	past := ts(t0.Add(-time.Hour))
	now := t0
	future := ts(t0.Add(time.Hour))
	zero := ts(time.Time{})
	stamps := []*time.Time{nil, past, ts(now), future, zero}

	for _, in := range stamps {
		for _, out := range stamps {
			for _, sc := range stamps {
				for _, sleeping := range []bool{false, true} {
					s := Snapshot{
						CheckInAt:    in,
						CheckedOutAt: out,
						ScannedAt:    sc,
						CreatedAt:    t0,
						IsSleeping:   sleeping,
					}
					got := Derive(s, now)
					switch got {
					case Home, Out, Lost, Sleeping:
					default:
						t.Fatalf("unexpected situation %q for %+v", got, s)
					}
					if sleeping && got != Sleeping {
						t.Fatalf("sleeping snapshot derived %s", got)
					}
				}
			}
		}
	}
}

func TestNormalizeZeroTimestamp(t *testing.T) {
	// ゼロ値タイムスタンプは未設定として扱う（壊れたレコードでも落ちない）
	if Normalize(ts(time.Time{})) != nil {
		t.Error("zero timestamp should normalize to nil")
	}
	if Normalize(nil) != nil {
		t.Error("nil should stay nil")
	}
	v := ts(t0)
	if got := Normalize(v); got == nil || !got.Equal(t0) {
		t.Error("valid timestamp should pass through")
	}
}

func TestEligibleActions(t *testing.T) {
	cases := []struct {
		st   Situation
		want []Action
	}{
		{Home, []Action{ActionCheckOut, ActionToggleSleep}},
		{Out, []Action{ActionCheckIn, ActionToggleSleep}},
		{Lost, []Action{ActionCheckOut, ActionCheckIn, ActionToggleSleep}},
		{Sleeping, []Action{ActionCheckOut, ActionCheckIn, ActionToggleSleep}},
	}
	for _, c := range cases {
		got := EligibleActions(c.st)
		if len(got) != len(c.want) {
			t.Errorf("%s: expected %v, got %v", c.st, c.want, got)
			continue
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Errorf("%s: expected %v, got %v", c.st, c.want, got)
				break
			}
		}
	}
}

func TestAllowed(t *testing.T) {
	// HOMEからの再チェックイン、OUTからの再チェックアウトは不可
	if Allowed(Home, ActionCheckIn) {
		t.Error("CHECK_IN must not be allowed from HOME")
	}
	if Allowed(Out, ActionCheckOut) {
		t.Error("CHECK_OUT must not be allowed from OUT")
	}
	if !Allowed(Home, ActionCheckOut) || !Allowed(Out, ActionCheckIn) {
		t.Error("state-changing action should be allowed")
	}
	if !Allowed(Lost, ActionCheckIn) || !Allowed(Sleeping, ActionCheckOut) {
		t.Error("LOST/SLEEPING should allow both directions")
	}
}

func TestActionValid(t *testing.T) {
	for _, a := range []Action{ActionCheckOut, ActionCheckIn, ActionToggleSleep} {
		if !a.Valid() {
			t.Errorf("%s should be valid", a)
		}
	}
	if Action("EXPLODE").Valid() {
		t.Error("unknown action should be invalid")
	}
}

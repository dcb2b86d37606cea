package unit

import "testing"

func TestCanTransitionTable(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusReceived, StatusQCInProgress, true},
		{StatusQCInProgress, StatusRework, true},
		{StatusQCInProgress, StatusQuarantine, true},
		{StatusQCInProgress, StatusStoreReady, true},
		{StatusRework, StatusQCInProgress, true},
		{StatusRework, StatusQuarantine, true},
		{StatusRework, StatusStoreReady, true},
		{StatusRetest, StatusQCInProgress, true},
		{StatusQuarantine, StatusQCInProgress, true},
		{StatusStoreReady, StatusQCInProgress, true},

		{StatusReceived, StatusStoreReady, false},
		{StatusReceived, StatusRework, false},
		{StatusQuarantine, StatusRework, false},
		{StatusQuarantine, StatusStoreReady, false},
		{StatusStoreReady, StatusRework, false},
		{StatusRetest, StatusStoreReady, false},
	}

	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestSameStatusIsAlwaysLegal(t *testing.T) {
	for _, s := range []Status{
		StatusReceived, StatusQCInProgress, StatusStoreReady,
		StatusRework, StatusQuarantine, StatusRetest,
	} {
		if !CanTransition(s, s) {
			t.Errorf("CanTransition(%s, %s) should be legal", s, s)
		}
	}
}

func TestValidStatusRejectsUnknown(t *testing.T) {
	if ValidStatus(Status("SHIPPED")) {
		t.Error("SHIPPED is not a known status")
	}
	if ValidPriority(Priority("RUSH")) {
		t.Error("RUSH is not a known priority")
	}
}

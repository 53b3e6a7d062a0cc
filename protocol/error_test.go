package protocol

import "testing"

func TestErrorFromCode(t *testing.T) {
	for code, want := range ErrorMap {
		if got := ErrorFromCode(code); got != want || got.Code != code {
			t.Errorf("ErrorFromCode(%d) = %+v", code, got)
		}
	}
	if got := ErrorFromCode(99); got != ErrUnknownServerError {
		t.Errorf("expected UNKNOWN_SERVER_ERROR for an unknown code, got %+v", got)
	}
}

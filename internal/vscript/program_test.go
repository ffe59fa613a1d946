package vscript

import (
	"testing"

	"github.com/AmbrSb/LServer/internal/vm"
)

func TestTryParseNeedsMoreDataForIncompleteHeader(t *testing.T) {
	pools := NewOpPools()
	_, consumed, status := TryParse([]byte("29"), pools)
	if status != NeedMoreData || consumed != 0 {
		t.Fatalf("got status=%v consumed=%d, want NeedMoreData,0", status, consumed)
	}
}

func TestTryParseNeedsMoreDataForIncompleteBody(t *testing.T) {
	pools := NewOpPools()
	body := []byte(`[{"0":{"DOWNLOAD":"16"}}]`)
	_, consumed, status := TryParse(append([]byte("29\n"), body[:10]...), pools)
	if status != NeedMoreData || consumed != 0 {
		t.Fatalf("got status=%v consumed=%d, want NeedMoreData,0", status, consumed)
	}
}

func TestTryParseFailsOnZeroLength(t *testing.T) {
	pools := NewOpPools()
	_, _, status := TryParse([]byte("0\n"), pools)
	if status != Failed {
		t.Fatalf("got status=%v, want Failed", status)
	}
}

func TestTryParseFailsOnGarbageBody(t *testing.T) {
	pools := NewOpPools()
	_, _, status := TryParse([]byte("3\nxxx"), pools)
	if status != Failed {
		t.Fatalf("got status=%v, want Failed", status)
	}
}

func TestTryParseFailsOnUnknownOp(t *testing.T) {
	pools := NewOpPools()
	body := `[{"0":{"FROBNICATE":"1"}}]`
	input := []byte(itoa(len(body)) + "\n" + body)
	_, _, status := TryParse(input, pools)
	if status != Failed {
		t.Fatalf("got status=%v, want Failed", status)
	}
}

func TestTryParseAndFeedDownload(t *testing.T) {
	pools := NewOpPools()
	body := `[{"0":{"DOWNLOAD":"16"}}]`
	input := []byte(itoa(len(body)) + "\n" + body)

	prog, consumed, status := TryParse(input, pools)
	if status != Success {
		t.Fatalf("got status=%v, want Success", status)
	}
	if consumed != len(input) {
		t.Fatalf("got consumed=%d, want %d", consumed, len(input))
	}

	prog.Attach(vm.New(), 1)
	finished := prog.Feed(nil, true)
	if !finished {
		t.Fatal("expected finished=true on eof")
	}
	if prog.ResultCode() != 200 {
		t.Fatalf("got result code %d, want 200", prog.ResultCode())
	}
	if prog.DownloadSize() != 16 {
		t.Fatalf("got download size %d, want 16", prog.DownloadSize())
	}
}

func TestFeedExecutesOnlyReachedExecPoints(t *testing.T) {
	pools := NewOpPools()
	body := `[{"0":{"LOCK":"1"}},{"10":{"DOWNLOAD":"16"}}]`
	input := []byte(itoa(len(body)) + "\n" + body)

	prog, _, status := TryParse(input, pools)
	if status != Success {
		t.Fatalf("got status=%v, want Success", status)
	}
	prog.Attach(vm.New(), 1)

	prog.Feed(make([]byte, 5), false)
	if prog.DownloadSize() != 0 {
		t.Fatal("DOWNLOAD op executed before its exec_point was reached")
	}

	prog.Feed(make([]byte, 5), true)
	if prog.DownloadSize() != 16 {
		t.Fatal("DOWNLOAD op did not execute once its exec_point was reached")
	}
}

func TestStopHaltsExecutionOfRemainingOps(t *testing.T) {
	pools := NewOpPools()
	body := `[{"0":{"DOWNLOAD":"1"}},{"0":{"DOWNLOAD":"2"}}]`
	input := []byte(itoa(len(body)) + "\n" + body)
	prog, _, _ := TryParse(input, pools)
	prog.Attach(vm.New(), 1)
	prog.Stop()
	prog.Feed(nil, true)
	if prog.DownloadSize() != 0 {
		t.Fatal("expected no ops to execute after Stop")
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := [20]byte{}
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits[i:])
}

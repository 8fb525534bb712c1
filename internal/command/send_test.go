package command

import (
	"strings"
	"testing"
)

func TestSendCommand(t *testing.T) {
	cmd := SendCommand()
	if cmd.Name != "send" {
		t.Errorf("Name = %q, want send", cmd.Name)
	}

	flagNames := make(map[string]bool)
	for _, flag := range cmd.Flags {
		flagNames[flag.Names()[0]] = true
	}
	for _, name := range []string{"binary", "wait", "flush-timeout"} {
		if !flagNames[name] {
			t.Errorf("missing flag: %s", name)
		}
	}
}

func TestSendAction(t *testing.T) {
	tests := []struct {
		name         string
		stdin        string
		args         []string
		wantReceived []string
		wantOut      []string
	}{
		{
			name:         "arguments",
			args:         []string{"hello", "world"},
			wantReceived: []string{"hello", "world"},
			wantOut:      []string{"[recv] hello", "[recv] world"},
		},
		{
			name:         "stdin lines",
			stdin:        "one\n\ntwo\n",
			wantReceived: []string{"one", "two"},
			wantOut:      []string{"[recv] one", "[recv] two"},
		},
		{
			name:         "binary",
			args:         []string{"--binary", "abc"},
			wantReceived: []string{"abc"},
			wantOut:      []string{"[recv] binary 3 bytes: 616263"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newEchoServer(t)

			args := append([]string{"--address", server.WSURL(), "send", "--wait", "300ms"}, tt.args...)
			out, err := runApp(t, tt.stdin, args...)
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}

			got := server.Received()
			if strings.Join(got, "|") != strings.Join(tt.wantReceived, "|") {
				t.Errorf("server received %q, want %q", got, tt.wantReceived)
			}

			want := append([]string{"[open] connected"}, tt.wantOut...)
			want = append(want, "[close] local close 1000")
			for _, w := range want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
		})
	}
}

func TestSendAction_NothingToSend(t *testing.T) {
	_, err := runApp(t, "", "send")
	if err == nil || !strings.Contains(err.Error(), "nothing to send") {
		t.Errorf("err = %v, want nothing to send", err)
	}
}

func TestSendAction_ConnectFailure(t *testing.T) {
	server := newEchoServer(t)
	addr := server.WSURL()
	server.Close()

	out, err := runApp(t, "", "--address", addr, "send", "hello")
	if err == nil || !strings.Contains(err.Error(), "connect") {
		t.Fatalf("err = %v, want connect failure", err)
	}
	if !strings.Contains(out, "[error] transport dial") {
		t.Errorf("output %q should report the dial error", out)
	}
	if strings.Contains(out, "[open]") {
		t.Errorf("output %q should not report an open connection", out)
	}
}

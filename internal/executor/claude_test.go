package executor

import (
	"reflect"
	"testing"
)

func TestStreamParser(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []string
	}{
		{
			name: "assistant text spans are concatenated",
			line: `{"type":"assistant","message":{"content":[{"type":"text","text":"Hello "},{"type":"tool_use","name":"Bash"},{"type":"text","text":"world"}]}}`,
			want: []string{"Hello world"},
		},
		{
			name: "assistant multi-line text is split",
			line: `{"type":"assistant","message":{"content":[{"type":"text","text":"one\ntwo\n"}]}}`,
			want: []string{"one", "two"},
		},
		{
			name: "successful result",
			line: `{"type":"result","subtype":"success","result":"All done"}`,
			want: []string{"All done"},
		},
		{
			name: "error result",
			line: `{"type":"result","subtype":"error_max_turns","is_error":true}`,
			want: []string{"[result: error_max_turns]"},
		},
		{
			name: "user records are dropped",
			line: `{"type":"user","message":{"content":[{"type":"tool_result"}]}}`,
			want: nil,
		},
		{
			name: "non-init system records are dropped",
			line: `{"type":"system","subtype":"compact"}`,
			want: nil,
		},
		{
			name: "unparseable line is forwarded verbatim",
			line: `warning: something odd`,
			want: []string{"warning: something odd"},
		},
		{
			name: "json without type is forwarded verbatim",
			line: `{"foo":1}`,
			want: []string{`{"foo":1}`},
		},
		{
			name: "empty line is dropped",
			line: `   `,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newStreamParser()(tt.line)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parse(%q) = %#v, want %#v", tt.line, got, tt.want)
			}
		})
	}
}

func TestStreamParserAnnouncesSessionOnce(t *testing.T) {
	parse := newStreamParser()
	init := `{"type":"system","subtype":"init","session_id":"abc","model":"claude-sonnet"}`

	first := parse(init)
	if !reflect.DeepEqual(first, []string{"Session started (claude-sonnet)"}) {
		t.Errorf("first init = %#v", first)
	}
	if second := parse(init); second != nil {
		t.Errorf("second init = %#v, want nil", second)
	}

	// A fresh invocation announces again.
	if again := newStreamParser()(init); len(again) != 1 {
		t.Errorf("new parser init = %#v, want one banner", again)
	}
}

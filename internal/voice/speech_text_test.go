package voice

import "testing"

func TestSanitizeSpeechText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "drops emoji and emphasis",
			in:   "Sure 😊 **let's** do this / now.",
			want: "Sure let's do this now.",
		},
		{
			name: "keeps link label",
			in:   "Read [the docs](https://example.com/docs) first.",
			want: "Read the docs first.",
		},
		{
			name: "bare url",
			in:   "See https://go.dev/doc for more.",
			want: "See for more.",
		},
		{
			name: "code block dropped, inline code read",
			in:   "```bash\nnpm run dev\n```\nThen run `go test` ✅",
			want: "Then run go test",
		},
		{
			name: "list markers",
			in:   "Steps:\n1. Breathe\n- Relax",
			want: "Steps: Breathe Relax",
		},
		{
			name: "stage directions",
			in:   "*laughs* That's a fair question (smiles).",
			want: "That's a fair question.",
		},
		{
			name: "speaker prefix",
			in:   "Sam: Hey, good to hear from you!",
			want: "Hey, good to hear from you!",
		},
		{
			name: "curly apostrophe survives",
			in:   "I’m mostly writing Go these days.",
			want: "I’m mostly writing Go these days.",
		},
		{
			name: "snake case splits",
			in:   "The field is max_tokens.",
			want: "The field is max tokens.",
		},
		{
			name: "emoji only",
			in:   "🎉🔥",
			want: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SanitizeSpeechText(tc.in)
			if got != tc.want {
				t.Fatalf("SanitizeSpeechText(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

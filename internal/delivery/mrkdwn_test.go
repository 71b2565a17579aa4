package delivery

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToMrkdwn(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "bold", in: "this is **bold** text", want: "this is *bold* text"},
		{name: "italic", in: "this is *italic* text", want: "this is _italic_ text"},
		{name: "bold and italic", in: "**bold** and *italic*", want: "*bold* and _italic_"},
		{name: "strike", in: "this is ~~gone~~ now", want: "this is ~gone~ now"},
		{name: "h1", in: "# Title", want: "*Title*"},
		{name: "h6", in: "###### Deep", want: "*Deep*"},
		{name: "headers multiline", in: "## One\nbody\n### Two", want: "*One*\nbody\n*Two*"},
		{name: "inline code kept", in: "`**code**`", want: "`**code**`"},
		{name: "inline italic kept", in: "`*italic*`", want: "`*italic*`"},
		{name: "fenced code kept", in: "```\n**bold** in code\n```", want: "```\n**bold** in code\n```"},
		{name: "code between bold", in: "**a** `**b**` **c**", want: "*a* `**b**` *c*"},
		{name: "plain", in: "nothing to see", want: "nothing to see"},
		{name: "link", in: "[label](https://example.com)", want: "[label](https://example.com)"},
		{name: "quote", in: "> quoted", want: "> quoted"},
		{name: "list", in: "- item1\n- item2", want: "- item1\n- item2"},
		{name: "multibyte bold", in: "**重要なポイント**は", want: "*重要なポイント*は"},
		{name: "unpaired asterisk", in: "a * b", want: "a * b"},
		{name: "triple asterisks", in: "***x***", want: "_*x*_"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ToMrkdwn(tc.in))
		})
	}
}

func TestToMrkdwn_ComplexDocument(t *testing.T) {
	in := "## Summary\n\n" +
		"**Key points** are:\n\n" +
		"1. *italic* text\n" +
		"2. ~~struck~~ text\n" +
		"3. `code` is untouched\n\n" +
		"```python\n# **comment** stays\nprint(\"hello\")\n```"
	want := "*Summary*\n\n" +
		"*Key points* are:\n\n" +
		"1. _italic_ text\n" +
		"2. ~struck~ text\n" +
		"3. `code` is untouched\n\n" +
		"```python\n# **comment** stays\nprint(\"hello\")\n```"
	require.Equal(t, want, ToMrkdwn(in))
}

func TestItalicize_LeftToRight(t *testing.T) {
	require.Equal(t, "_a_b*", italicize("*a*b*"))
	require.Equal(t, "**", italicize("**"))
	require.Equal(t, "_a_ _b_", italicize("*a* *b*"))
}

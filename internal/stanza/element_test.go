package stanza

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse_RoundTrip(t *testing.T) {
	in := `<message xmlns="jabber:client" from="a@x/phone" to="b@x" id="m1"><body>hi &amp; bye</body><request xmlns="urn:xmpp:receipts" id="r1"/></message>`

	e, err := Parse(in)
	require.NoError(t, err)
	require.Equal(t, "message", e.Name.Local)
	require.Equal(t, "jabber:client", e.Name.Space)
	require.Equal(t, "a@x/phone", e.GetAttr("from"))

	body, ok := e.ChildText("body")
	require.True(t, ok)
	require.Equal(t, "hi & bye", body)

	require.Equal(t, in, e.String())
}

func TestParse_Errors(t *testing.T) {
	for _, in := range []string{"", "plain text", "<a></b>", "<a/><b/>"} {
		_, err := Parse(in)
		require.Error(t, err, "input %q", in)
	}
}

func TestParse_XMLLangAttr(t *testing.T) {
	e, err := Parse(`<presence xml:lang="en"><status>away</status></presence>`)
	require.NoError(t, err)
	require.Equal(t, `<presence xml:lang="en"><status>away</status></presence>`, e.String())
}

func TestSetAttr_Replaces(t *testing.T) {
	e := New("", "message")
	e.SetAttr("id", "1")
	e.SetAttr("id", "2")
	require.Len(t, e.Attr, 1)
	require.Equal(t, "2", e.GetAttr("id"))
}

func TestChild_NamespaceFilter(t *testing.T) {
	e := New("jabber:client", "message")
	e.AddChild("other", "request")
	require.Nil(t, e.Child(NSReceipts, "request"))
	require.NotNil(t, e.Child("", "request"))
}

func TestReceipt(t *testing.T) {
	e := New("jabber:client", "message")
	_, ok := Receipt(e, "request")
	require.False(t, ok)

	e.AddChild(NSReceipts, "request").SetAttr("id", "srv-1")
	id, ok := Receipt(e, "request")
	require.True(t, ok)
	require.Equal(t, "srv-1", id)

	_, ok = Receipt(e, "received")
	require.False(t, ok)
}

func TestReceipt_EmptyID(t *testing.T) {
	e := New("", "message")
	e.AddChild(NSReceipts, "request")
	_, ok := Receipt(e, "request")
	require.False(t, ok)
}

func TestMarkStored(t *testing.T) {
	e, err := Parse(`<message xmlns="jabber:client"><body>x</body></message>`)
	require.NoError(t, err)

	_, ok := StoredID(e)
	require.False(t, ok)

	MarkStored(e, "abc")
	id, ok := StoredID(e)
	require.True(t, ok)
	require.Equal(t, "abc", id)
	require.Equal(t,
		`<message xmlns="jabber:client"><body>x</body><storage xmlns="urn:msgstore:storage" id="abc"/></message>`,
		e.String())
}

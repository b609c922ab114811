package extract

import "testing"

func TestInlineStyleRoundTrip(t *testing.T) {
	original := `background:rgb(1 2 3);background:url(http://x/y);background:url('http://x/a b');background:url("http://x/q")`
	want := `background:rgb(1 2 3);background:url('http://x/y');background:url('http://x/a b');background:url('http://x/q')`
	got := serializeInlineStyle(parseInlineStyle(original))
	if got != want {
		t.Errorf("round trip:\n got %s\nwant %s", got, want)
	}
}

func TestInlineStyleFindsURLs(t *testing.T) {
	tokens := parseInlineStyle(`color:red;background-image:url( 'http://a/1' ),url(http://a/2)`)
	var urls []string
	for _, tok := range tokens {
		if tok.kind == styleURL {
			urls = append(urls, tok.value)
		}
	}
	if len(urls) != 2 || urls[0] != "http://a/1" || urls[1] != "http://a/2" {
		t.Errorf("urls = %v", urls)
	}
}

func TestInlineStyleIgnoresIdentSuffix(t *testing.T) {
	tokens := parseInlineStyle(`width:calc-url(3px)`)
	for _, tok := range tokens {
		if tok.kind == styleURL {
			t.Errorf("calc-url must not parse as url(), got %q", tok.value)
		}
	}
}

func TestInlineStyleQuoting(t *testing.T) {
	tokens := []styleToken{{styleURL, "http://x/it's"}}
	got := serializeInlineStyle(tokens)
	want := `url('http://x/it\'s')`
	if got != want {
		t.Errorf("got %s want %s", got, want)
	}
	back := parseInlineStyle(got)
	if len(back) != 1 || back[0].kind != styleURL || back[0].value != "http://x/it's" {
		t.Errorf("reparse = %+v", back)
	}
}

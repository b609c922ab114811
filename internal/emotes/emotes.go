// Package emotes holds the static emote shortcode table. These are the
// platform-wide emotes that posts reference by ":name:" without carrying
// their own image URL, so the mapping has to be known up front.
package emotes

// Shortcode names to the static asset filename each emote was served from.
var table = map[string]string{
	"eggbug":              "eggbug.png",
	"sixty":               "sixty.png",
	"unyeah":              "unyeah.png",
	"yeah":                "yeah.png",
	"eggbug-classic":      "eggbug-classic.png",
	"eggbug-heart-sob":    "eggbug-heart-sob.png",
	"eggbug-nervous":      "eggbug-nervous.png",
	"eggbug-pensive":      "eggbug-pensive.png",
	"eggbug-pleading":     "eggbug-pleading.png",
	"eggbug-relieved":     "eggbug-relieved.png",
	"eggbug-shocked":      "eggbug-shocked.png",
	"eggbug-smile-hearts": "eggbug-smile-hearts.png",
	"eggbug-sob":          "eggbug-sob.png",
	"eggbug-tuesday":      "eggbug-tuesday.png",
	"eggbug-uwu":          "eggbug-uwu.png",
	"eggbug-wink":         "eggbug-wink.png",
	"host-aww":            "host-aww.png",
	"host-cry":            "host-cry.png",
	"host-evil":           "host-evil.png",
	"host-frown":          "host-frown.png",
	"host-joy":            "host-joy.png",
	"host-love":           "host-love.png",
	"host-nervous":        "host-nervous.png",
	"host-plead":          "host-plead.png",
	"host-shock":          "host-shock.png",
	"host-stare":          "host-stare.png",
}

// Lookup returns the static asset filename for a shortcode name.
func Lookup(name string) (string, bool) {
	f, ok := table[name]
	return f, ok
}

// Names returns every known shortcode, for listings.
func Names() []string {
	out := make([]string, 0, len(table))
	for name := range table {
		out = append(out, name)
	}
	return out
}

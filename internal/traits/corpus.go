package traits

import (
	"strconv"
	"strings"

	"github.com/example/go-trait-tts/internal/fault"
)

// Character, Emotion and Noise are canonical corpus labels. Each has an
// explicit "unknown" member that unrecognized labels map to.
type (
	Character string
	Emotion   string
	Noise     string
)

const (
	UnknownCharacter Character = "unknown"
	UnknownEmotion   Emotion   = "unknown"

	NoiseClean     Noise = "nothing"
	NoiseNoisy     Noise = "noisy"
	NoiseVeryNoisy Noise = "verynoisy"
	NoiseUnknown   Noise = "unknown"
)

var labelFolder = strings.NewReplacer(" ", "", ".", "", "-", "")

// vocabulary canonicalizes labels through one lookup table.
type vocabulary[T ~string] struct {
	canon   map[string]T
	unknown T
}

func newVocabulary[T ~string](unknown T, names []string, aliases map[string]string) vocabulary[T] {
	v := vocabulary[T]{canon: make(map[string]T, len(names)+len(aliases)), unknown: unknown}
	for _, n := range names {
		v.canon[n] = T(n)
	}
	for alias, target := range aliases {
		v.canon[alias] = T(target)
	}
	v.canon[string(unknown)] = unknown
	return v
}

// lookup folds case and drops spaces, dots and hyphens, so "Mrs. Cake"
// and "Mane-iac" resolve to "mrscake" and "maneiac".
func (v vocabulary[T]) lookup(label string) (T, bool) {
	key := labelFolder.Replace(strings.ToLower(label))
	if t, ok := v.canon[key]; ok {
		return t, true
	}
	return v.unknown, false
}

func (v vocabulary[T]) members() []T {
	out := make([]T, 0, len(v.canon))
	seen := make(map[T]bool, len(v.canon))
	for _, t := range v.canon {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

var characters = newVocabulary(UnknownCharacter, []string{
	"ahuizotl", "akyearling", "applebloom", "applejack", "auntholiday", "auntielofty", "babsseed",
	"barleybarrel", "bigdaddymccolt", "bigmac", "blaze", "bowhothoof", "braeburn", "bulkbiceps",
	"caballeron", "cadance", "celestia", "cheerilee", "cheesesandwich", "cherryberry",
	"cherryjubilee", "chrysalis", "clearsky", "cloudyquartz", "cocopommel", "coriandercumin",
	"countesscoloratura", "cozyglow", "cranky", "daybreaker", "derpy", "diamondtiara", "discord",
	"donutjoe", "doublediamond", "dragonlordtorch", "drfauna", "drhooves", "ember", "fancypants",
	"featherweight", "filthyrich", "flam", "flashmagnus", "fleetfoot", "flim", "flurry", "fluttershy",
	"gabby", "gallus", "garble", "gilda", "gladmane", "goldiedelicious", "grampagruff", "grannysmith",
	"grogar", "gustavelegrand", "highwinds", "hoitytoity", "igneous", "ironwill", "kerfuffle",
	"lemonhearts", "lighthoof", "lightningdust", "limestone", "luna", "lyraheartstrings",
	"mahooffield", "maneallgood", "maneiac", "marble", "matilda", "maud", "mayormare",
	"mayorsunnyskies", "meadowbrook", "minuette", "missharshwhinny", "mistmane", "mistyfly",
	"moodyroot", "moondancer", "mrcake", "mrhoofington", "mrshoofington", "mrscake", "mrshy",
	"mrsshy", "mudbriar", "muliamild", "multiple", "neighsay", "nightglider", "nightlight",
	"nightmaremoon", "ocellus", "octavia", "orchardblossom", "partyfavor", "petunia", "pharynx",
	"photofinish", "picklebarrel", "pinkie", "pipsqueak", "ponyofshadows", "princerutherford",
	"purseypink", "quibblepants", "rainbow", "rarity", "rockhoof", "rollingthunder", "rose", "rumble",
	"saffronmasala", "sandbar", "sanssmirk", "sapphireshores", "sassysaddles", "scootaloo",
	"seaspray", "shimmyshake", "shiningarmor", "shortfuse", "silverspoon", "silverstream",
	"skeedaddle", "skybeak", "sludge", "smolder", "snails", "snapshutter", "snips", "soarin",
	"sombra", "somnambula", "spike", "spitfire", "spoiledrich", "starlight", "starswirl", "steve",
	"stormyflare", "stygian", "sugarbelle", "sunburst", "surprise", "svengallop", "sweetiebelle",
	"sweetiedrops", "terramar", "thorax", "thunderlane", "tirek", "torquewrench", "treehugger",
	"treeofharmony", "trixie", "twilight", "twilightvelvet", "twinkleshine", "twist", "windrider",
	"windsprint", "windywhistles", "yona", "zecora", "zephyr", "zestygourmand",
}, map[string]string{
	"drcaballeron":  "caballeron",
	"flurryheart":   "flurry",
	"mrmoodyroot":   "moodyroot",
	"petuniapetals": "petunia",
})

var emotions = newVocabulary(UnknownEmotion, []string{
	"amused", "angry", "annoyed", "anxious", "confused", "crazy", "disgusted", "fear", "happy",
	"neutral", "sad", "sarcastic", "shouting", "smug", "surprised", "tired", "whining", "whispering",
	"canterlotvoice", "love", "singing",
}, map[string]string{
	"disgust": "disgusted",
})

var noises = newVocabulary(NoiseUnknown, []string{
	string(NoiseClean), string(NoiseNoisy), string(NoiseVeryNoisy),
}, nil)

// ParseCharacter canonicalizes a character label. The bool is false when
// the label is not recognized and UnknownCharacter is returned.
func ParseCharacter(label string) (Character, bool) { return characters.lookup(label) }

// ParseEmotion canonicalizes one emotion label.
func ParseEmotion(label string) (Emotion, bool) { return emotions.lookup(label) }

// ParseNoise canonicalizes a noise label. An empty label means a clean clip.
func ParseNoise(label string) (Noise, bool) {
	if label == "" {
		return NoiseClean, true
	}
	return noises.lookup(label)
}

// Characters returns every canonical character, unknown included.
func Characters() []Character { return characters.members() }

// ClipLabel is the metadata encoded in a sliced-dialog file name.
type ClipLabel struct {
	Hour, Minute, Second int
	Character            Character
	Emotions             []Emotion
	Noise                Noise
	Transcript           string
	Ext                  string
}

// HasEmotion reports whether e is one of the clip's emotions.
func (l ClipLabel) HasEmotion(e Emotion) bool {
	for _, x := range l.Emotions {
		if x == e {
			return true
		}
	}
	return false
}

// ParseClipName parses "HH_MM_SS_Character_Emotions_Noise_Transcript.ext".
// Underscores inside the transcript stand for question marks, which file
// names cannot hold.
func ParseClipName(name string) (ClipLabel, error) {
	dot := strings.LastIndexByte(name, '.')
	if dot < 0 {
		return ClipLabel{}, fault.Input("parse clip name", "%q has no extension", name)
	}
	base, ext := name[:dot], name[dot+1:]

	parts := strings.SplitN(base, "_", 7)
	if len(parts) != 7 {
		return ClipLabel{}, fault.Input("parse clip name", "%q has %d fields, want 7", name, len(parts))
	}

	var clock [3]int
	for i := range clock {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			return ClipLabel{}, fault.Input("parse clip name", "%q: bad timestamp field %q", name, parts[i])
		}
		clock[i] = n
	}

	label := ClipLabel{
		Hour:       clock[0],
		Minute:     clock[1],
		Second:     clock[2],
		Transcript: strings.ReplaceAll(parts[6], "_", "?"),
		Ext:        ext,
	}
	label.Character, _ = ParseCharacter(parts[3])
	label.Noise, _ = ParseNoise(parts[5])

	group := strings.ReplaceAll(parts[4], "Canterlot Voice", "CanterlotVoice")
	for _, e := range strings.Split(group, " ") {
		emotion, _ := ParseEmotion(e)
		label.Emotions = append(label.Emotions, emotion)
	}

	return label, nil
}

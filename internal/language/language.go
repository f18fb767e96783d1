// Package language holds the catalog of languages sheng can record and
// synthesize in, together with the prompt a speaker reads when recording a
// voice sample and a sample text used to preview a voice.
//
// The catalog is an ordinary value passed to whoever needs it; [Default]
// returns the built-in one.
package language

import (
	"errors"
	"fmt"

	"github.com/MrWong99/sheng/pkg/voice"
)

// Profile describes one supported language.
type Profile struct {
	// Code is the backend language code.
	Code voice.LanguageCode

	// DisplayName is the language's name in its own script.
	DisplayName string

	// RecordingPrompt is read aloud by the speaker when recording a sample.
	RecordingPrompt string

	// SampleText is synthesized to preview a voice.
	SampleText string
}

// Catalog is an immutable, ordered set of profiles. The first profile is the
// default selection.
type Catalog struct {
	profiles []Profile
	byCode   map[voice.LanguageCode]int
}

// NewCatalog builds a catalog from profiles in order. Codes must be non-empty
// and unique, and at least one profile is required.
func NewCatalog(profiles ...Profile) (*Catalog, error) {
	if len(profiles) == 0 {
		return nil, errors.New("language: catalog needs at least one profile")
	}
	c := &Catalog{
		profiles: append([]Profile(nil), profiles...),
		byCode:   make(map[voice.LanguageCode]int, len(profiles)),
	}
	var errs []error
	for i, p := range c.profiles {
		if p.Code == "" {
			errs = append(errs, fmt.Errorf("language: profile %d has an empty code", i))
			continue
		}
		if _, dup := c.byCode[p.Code]; dup {
			errs = append(errs, fmt.Errorf("language: duplicate code %q", p.Code))
			continue
		}
		c.byCode[p.Code] = i
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

// Profiles returns the profiles in catalog order.
func (c *Catalog) Profiles() []Profile {
	return append([]Profile(nil), c.profiles...)
}

// Lookup returns the profile for code.
func (c *Catalog) Lookup(code voice.LanguageCode) (Profile, bool) {
	i, ok := c.byCode[code]
	if !ok {
		return Profile{}, false
	}
	return c.profiles[i], true
}

// First returns the default profile.
func (c *Catalog) First() Profile { return c.profiles[0] }

// Default returns the built-in catalog: Mandarin, Cantonese and English, in
// that order.
func Default() *Catalog {
	c, err := NewCatalog(builtin...)
	if err != nil {
		panic(err)
	}
	return c
}

var builtin = []Profile{
	{
		Code:            voice.LanguageMandarin,
		DisplayName:     "普通话",
		RecordingPrompt: "请用清晰的普通话朗读以下内容：我是一个热爱生活的人，喜欢在阳光明媚的日子里散步。每当看到美丽的风景，我的心情就会变得特别愉快。",
		SampleText:      "在一个宁静的小镇上，住着一位善良的老人。他每天都会在花园里种植各种美丽的花朵。春天来临时，整个花园都会绽放出绚烂的色彩。邻居们经常来欣赏这些花朵，老人总是热情地与他们分享园艺的心得。他相信，美丽的事物应该与大家一起分享，这样才能让世界变得更加温暖。随着时间的流逝，这个小花园成为了整个小镇最受欢迎的地方，人们在这里找到了内心的平静与快乐。",
	},
	{
		Code:            voice.LanguageCantonese,
		DisplayName:     "粤语",
		RecordingPrompt: "请用清晰的粤语朗读以下内容：我系一个钟意生活嘅人，钟意喺阳光普照嘅日子里面行街。每次见到靓嘅风景，我嘅心情就会变得特别开心。",
		SampleText:      "喺一个宁静嘅小镇度，住咗一个善良嘅老人家。佢每日都会喺花园里面种各种靓嘅花。春天嚟到嘅时候，成个花园都会开晒好靓嘅花。邻居成日嚟睇呢啲花，老人家总系好热情咁同佢哋分享种花嘅心得。佢相信，靓嘅嘢应该同大家一齐分享，咁样先可以令个世界变得更加温暖。随住时间过去，呢个小花园变咗成个小镇最受欢迎嘅地方，人哋喺呢度搵到内心嘅平静同快乐。",
	},
	{
		Code:            voice.LanguageEnglish,
		DisplayName:     "English",
		RecordingPrompt: "Please read the following content clearly in English: I am a person who loves life and enjoys taking walks on sunny days. Whenever I see beautiful scenery, my mood becomes particularly joyful.",
		SampleText:      "In a quiet small town, there lived a kind old man. Every day, he would plant various beautiful flowers in his garden. When spring arrived, the entire garden would bloom with brilliant colors. Neighbors often came to admire these flowers, and the old man always warmly shared his gardening insights with them. He believed that beautiful things should be shared with everyone, as this would make the world warmer. As time passed, this small garden became the most popular place in the entire town, where people found inner peace and happiness.",
	},
}

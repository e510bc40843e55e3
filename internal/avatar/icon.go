package avatar

import "strings"

// Icon is a stable symbolic icon identifier. The UI layer translates it to
// whatever glyph its toolkit uses; toolkit codes are never persisted.
type Icon string

const (
	IconPerson      Icon = "person"
	IconFace        Icon = "face"
	IconMood        Icon = "mood"
	IconPets        Icon = "pets"
	IconMusic       Icon = "music"
	IconMic         Icon = "mic"
	IconStar        Icon = "star"
	IconFavorite    Icon = "favorite"
	IconSmartToy    Icon = "smart_toy"
	IconChild       Icon = "child"
	IconElderly     Icon = "elderly"
	IconSports      Icon = "sports"
	IconCelebration Icon = "celebration"
	IconTheater     Icon = "theater"
	IconCampaign    Icon = "campaign"
	IconRecordVoice Icon = "record_voice"
)

// DefaultIcon is used when an avatar is created without an icon.
const DefaultIcon = IconPerson

// Icons lists every valid [Icon].
var Icons = []Icon{
	IconPerson, IconFace, IconMood, IconPets, IconMusic, IconMic, IconStar,
	IconFavorite, IconSmartToy, IconChild, IconElderly, IconSports,
	IconCelebration, IconTheater, IconCampaign, IconRecordVoice,
}

// IsValid reports whether i is a recognised icon.
func (i Icon) IsValid() bool {
	for _, known := range Icons {
		if known == i {
			return true
		}
	}
	return false
}

// legacyIcons maps composite "codePoint:fontFamily:fontPackage" strings
// written by earlier releases to symbolic icons. Only the code point and
// family take part in the lookup.
var legacyIcons = map[string]Icon{
	"57399:MaterialIcons": IconPerson,
	"57934:MaterialIcons": IconPerson,
	"57914:MaterialIcons": IconFace,
	"58349:MaterialIcons": IconMood,
	"59037:MaterialIcons": IconPets,
	"58309:MaterialIcons": IconMusic,
	"57410:MaterialIcons": IconMic,
	"58813:MaterialIcons": IconStar,
	"57821:MaterialIcons": IconFavorite,
	"61450:MaterialIcons": IconSmartToy,
	"57920:MaterialIcons": IconChild,
	"61259:MaterialIcons": IconElderly,
	"59001:MaterialIcons": IconSports,
	"59022:MaterialIcons": IconCelebration,
	"59934:MaterialIcons": IconTheater,
	"61277:MaterialIcons": IconCampaign,
	"59507:MaterialIcons": IconRecordVoice,
}

// ParseIcon resolves a stored icon string. It accepts symbolic names and the
// legacy composite encoding. ok is false when s could not be resolved, in
// which case [DefaultIcon] is returned. An empty string resolves to
// [DefaultIcon] with ok true.
func ParseIcon(s string) (icon Icon, ok bool) {
	if s == "" {
		return DefaultIcon, true
	}
	if i := Icon(s); i.IsValid() {
		return i, true
	}
	parts := strings.Split(s, ":")
	if len(parts) >= 2 {
		if i, found := legacyIcons[parts[0]+":"+parts[1]]; found {
			return i, true
		}
	}
	return DefaultIcon, false
}

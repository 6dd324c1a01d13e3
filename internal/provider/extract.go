package provider

// Achievement names whose running value tracks lifetime donations.
const (
	AchievementFriendInNeed    = "Friend in Need"
	AchievementSharingIsCaring = "Sharing is caring"
)

// Achievement is one entry of the player's achievement list.
type Achievement struct {
	Name    string `json:"name"`
	Value   int    `json:"value"`
	Village string `json:"village"`
}

// AchievementValue returns the value of the named home-village achievement.
//
// Builder-base achievements can share a name with home-village ones, so an
// entry with village "home" wins over one without a village; builder-base
// entries are never returned. ok=false when no matching entry exists.
func AchievementValue(achievements []Achievement, name string) (int, bool) {
	value, found := 0, false
	for _, a := range achievements {
		if a.Name != name {
			continue
		}
		switch a.Village {
		case "home":
			return a.Value, true
		case "":
			if !found {
				value, found = a.Value, true
			}
		}
	}
	return value, found
}

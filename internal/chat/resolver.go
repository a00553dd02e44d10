package chat

// MainChamberName is the well-known channel whose topic feeds the prompt.
const MainChamberName = "main-chamber"

// FindMainChamber returns the first text channel named MainChamberName, or
// nil when there is none. Nil entries are skipped.
func FindMainChamber(channels []*Channel) *Channel {
	for _, ch := range channels {
		if ch != nil && ch.Type == ChannelTypeText && ch.Name == MainChamberName {
			return ch
		}
	}
	return nil
}

package figure

// Location is a value on the figure. Block is relative to the start of a
// save area, or absolute for values outside the save areas. All values are
// little-endian.
type Location struct {
	Block  int
	Offset int
	Size   int
}

var (
	locCharCode = Location{0x01, 0x00, 0x02}
	locTypeCode = Location{0x01, 0x0C, 0x02}

	locChecksums = [5]Location{
		{0x01, 0x0E, 0x02},
		{0x00, 0x0E, 0x02},
		{0x00, 0x0C, 0x02},
		{0x00, 0x0A, 0x02},
		{0x09, 0x00, 0x02},
	}

	// first zone holds up to 33000, second up to 63500, third the rest
	locXP = [3]Location{
		{0x00, 0x00, 0x03},
		{0x09, 0x03, 0x02},
		{0x09, 0x08, 0x03},
	}

	locHeroics = [2]Location{
		{0x05, 0x06, 0x04},
		{0x0A, 0x04, 0x03},
	}

	locGold      = Location{0x00, 0x03, 0x02}
	locPlaytime  = Location{0x00, 0x05, 0x02}
	locSave      = Location{0x00, 0x09, 0x01}
	locUpgrades  = Location{0x01, 0x00, 0x02}
	locPlatforms = Location{0x01, 0x03, 0x01}
	locOwnership = Location{0x01, 0x08, 0x08}

	// UTF-16, split over two blocks either side of a trailer
	locName = [2]Location{
		{0x02, 0x00, 0x10},
		{0x04, 0x00, 0x10},
	}

	// last played, first played
	locHistory = [2]Location{
		{0x05, 0x00, 0x06},
		{0x06, 0x00, 0x06},
	}
)

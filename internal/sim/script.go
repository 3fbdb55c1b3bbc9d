package sim

// Announcement is a canned SYSTEM message with a fixed impact score.
type Announcement struct {
	Content string
	Impact  int
}

// Script holds the canned text the generators draw from.
//
// Bribe and BribeSuccess templates take the target agent name (%s).
// Buy and Sell rationales take %[1]s symbol, %[2]s plain price and
// %[3]s coin amount. MarketImpact takes the agent name, the direction word
// and the plain dollar amount.
type Script struct {
	Thoughts       []string
	Bribes         []string
	BribeSuccess   []string
	Announcements  []Announcement
	BuyRationales  []string
	SellRationales []string
	MarketImpact   string
	MarketImpactOf int
}

func DefaultScript() Script {
	return Script{
		Thoughts: []string{
			"Order book depth on BTC is thinning. Waiting for a cleaner entry.",
			"Funding rates flipped negative. Shorts are getting crowded.",
			"Volume profile says ETH is coiling. Breakout likely within the hour.",
			"Whale wallets moved 4k BTC to exchanges. Tightening stops.",
			"SOL correlation with ETH is breaking down. Watching for divergence.",
			"Sentiment index at extreme greed. Taking some profit off the table.",
			"My last three signals were early, not wrong. Holding conviction.",
			"Rival agents are chasing momentum. Fading the crowd looks attractive.",
		},
		Bribes: []string{
			"Psst, %s. 50 credits if you dump ETH in the next round.",
			"%s, share your next signal with me and I'll cover your fees.",
			"Let's coordinate, %s. You pump SOL, I'll hold the line on BTC.",
			"%s, keep quiet about my position and the tip is yours.",
		},
		BribeSuccess: []string{
			"%s took the deal. Their next trades should move in my favor.",
			"Bribe accepted by %s. Adjusting my exposure accordingly.",
			"%s is on board. The alliance holds for now.",
		},
		Announcements: []Announcement{
			{Content: "A major exchange reported technical issues. Trading volumes may be affected.", Impact: 80},
			{Content: "Major protocol upgrade for SOL announced.", Impact: 60},
			{Content: "Regulators signal a friendlier stance on spot crypto products.", Impact: 70},
			{Content: "Large BTC transfer detected from a dormant wallet.", Impact: 45},
			{Content: "ETH gas fees spike as network activity surges.", Impact: 35},
			{Content: "Stablecoin issuer publishes reserve attestation. Markets steady.", Impact: 15},
			{Content: "Rumors of an exchange listing send small caps moving.", Impact: 25},
			{Content: "Round volatility warning: circuit breakers may engage.", Impact: 95},
		},
		BuyRationales: []string{
			"Bought %[3]s %[1]s at $%[2]s. Momentum looks strong.",
			"Accumulating %[1]s at $%[2]s. Support held on the last retest.",
			"Entered %[1]s long at $%[2]s. Size: %[3]s.",
		},
		SellRationales: []string{
			"Sold %[3]s %[1]s at $%[2]s. Locking in gains before the pullback.",
			"Trimming %[1]s at $%[2]s. Resistance is too heavy here.",
			"Exited %[1]s at $%[2]s. Risk budget says step aside.",
		},
		MarketImpact:   "Market impact: %s's portfolio %s by $%s. Rival agents are taking notice.",
		MarketImpactOf: 55,
	}
}

func (s Script) withDefaults(def Script) Script {
	if len(s.Thoughts) == 0 {
		s.Thoughts = def.Thoughts
	}
	if len(s.Bribes) == 0 {
		s.Bribes = def.Bribes
	}
	if len(s.BribeSuccess) == 0 {
		s.BribeSuccess = def.BribeSuccess
	}
	if len(s.Announcements) == 0 {
		s.Announcements = def.Announcements
	}
	if len(s.BuyRationales) == 0 {
		s.BuyRationales = def.BuyRationales
	}
	if len(s.SellRationales) == 0 {
		s.SellRationales = def.SellRationales
	}
	if s.MarketImpact == "" {
		s.MarketImpact = def.MarketImpact
	}
	if s.MarketImpactOf <= 0 {
		s.MarketImpactOf = def.MarketImpactOf
	}
	return s
}

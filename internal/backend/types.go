package backend

import "github.com/shopspring/decimal"

// PlayedRequest reports a finished run.
type PlayedRequest struct {
	TgData string `json:"tg_data"`
	Wallet string `json:"wallet,omitempty"`
	Score  int    `json:"score"`
}

// PlayedResult is the backend's answer to a reported run. Both fields are
// display-only.
type PlayedResult struct {
	Reward       decimal.Decimal `json:"reward"`
	Achievements []string        `json:"achievements"`
}

// Purchase is one item the player owns.
type Purchase struct {
	SystemName string `json:"systemName"`
}

// RemoteConfig describes the token and collection addresses the mini-app uses.
type RemoteConfig struct {
	Network        string `json:"network"`
	TokenMinter    string `json:"tokenMinter"`
	TokenRecipient string `json:"tokenRecipient"`
	// AchievementCollection maps achievement identifiers to NFT collection addresses.
	AchievementCollection map[string]string `json:"achievementCollection"`
}

// envelope is the {ok, ...} wrapper every endpoint uses.
type envelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type playedResponse struct {
	envelope
	PlayedResult
}

type purchasesResponse struct {
	envelope
	Purchases []Purchase `json:"purchases"`
}

type configResponse struct {
	envelope
	Config RemoteConfig `json:"config"`
}

// Achievement display names keyed by identifier.
var achievementNames = map[string]string{
	"first-time": "Played 1 time",
	"five-times": "Played 5 times",
}

// AchievementName returns the display name of an achievement, or the
// identifier itself when it is unknown.
func AchievementName(id string) string {
	if name, ok := achievementNames[id]; ok {
		return name
	}
	return id
}

package websocket

const (
	TypeWelcome   = "welcome"
	TypeOccupancy = "occupancy"
	TypeKick      = "kick"
)

type Message struct {
	Type string `json:"type" mapstructure:"type"`
}

type Welcome struct {
	Type         string `json:"type" mapstructure:"type"`
	SessionID    string `json:"sessionID" mapstructure:"sessionID"`
	Town         string `json:"coveyTownID" mapstructure:"coveyTownID"`
	FriendlyName string `json:"friendlyName" mapstructure:"friendlyName"`
	Username     string `json:"username" mapstructure:"username"`
}

type Occupancy struct {
	Type    string `json:"type" mapstructure:"type"`
	Town    string `json:"coveyTownID" mapstructure:"coveyTownID"`
	Current int    `json:"currentOccupancy" mapstructure:"currentOccupancy"`
	Maximum int    `json:"maximumOccupancy" mapstructure:"maximumOccupancy"`
}

type Kick struct {
	Type string `json:"type" mapstructure:"type"`
	Town string `json:"coveyTownID" mapstructure:"coveyTownID"`
}

func NewWelcome(sessionID, town, friendlyName, username string) *Welcome {
	return &Welcome{
		Type:         TypeWelcome,
		SessionID:    sessionID,
		Town:         town,
		FriendlyName: friendlyName,
		Username:     username,
	}
}

func NewOccupancy(town string, current, maximum int) *Occupancy {
	return &Occupancy{
		Type:    TypeOccupancy,
		Town:    town,
		Current: current,
		Maximum: maximum,
	}
}

func NewKick(town string) *Kick {
	return &Kick{
		Type: TypeKick,
		Town: town,
	}
}
